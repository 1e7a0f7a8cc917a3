package errors

import (
	"go.uber.org/zap"
)

// LogError logs an error with its context
func LogError(logger *zap.Logger, err error, requestID string) {
	if botErr, ok := err.(*BotError); ok {
		logger.Error("request error",
			zap.String("error_type", string(botErr.Type)),
			zap.String("message", botErr.Message),
			zap.Int("code", botErr.Code),
			zap.String("request_id", requestID),
			zap.Any("details", botErr.Details),
		)
	} else {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
	}
}
