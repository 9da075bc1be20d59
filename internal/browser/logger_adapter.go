package browser

import "go.uber.org/zap"

// ZapAdapter bridges chromedp's printf-style logging hooks onto zap.
type ZapAdapter struct {
	logger *zap.SugaredLogger
}

// NewZapAdapter wraps a zap logger for use with chromedp.WithLogf and friends.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger.Named("chromedp").Sugar()}
}

func (a *ZapAdapter) Logf(format string, args ...interface{}) {
	a.logger.Debugf(format, args...)
}

func (a *ZapAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Errorf(format, args...)
}
