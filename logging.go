package zipvault

import "go.uber.org/zap"

// WithLogger injects a *zap.Logger the archive uses for the ambient
// diagnostic events named in §4.8/§9 (skipped encrypted entries and ZIP64
// promotion at Debug, early central-directory termination at Warn). The
// default is zap.NewNop(), so a caller who never configures one pays nothing.
func WithLogger(logger *zap.Logger) OpenOption {
	return func(c *ArchiveConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func defaultLogger() *zap.Logger {
	return zap.NewNop()
}
