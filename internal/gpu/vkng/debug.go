package vkng

import (
	"context"
	"log/slog"

	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"

	"github.com/vkngwrapper/texturedquad/internal/logging"
)

func debugMessengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityVerbose,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

// severityLevel picks the most severe bit set in severity.
func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityVerbose != 0:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	logging.Logger().Log(context.Background(), severityLevel(severity), data.Message,
		"source", "validation",
		"type", msgType.String())
	return false
}
