package ai

import (
	"outreachly/config"

	"github.com/sirupsen/logrus"
)

// NewService picks the provider for cfg. Without a Gemini key the
// engine still runs; everything the classifier would see goes to review.
func NewService(cfg config.AIConfig, log *logrus.Entry) Service {
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, AI features disabled")
		return Disabled{}
	}
	return NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
}
