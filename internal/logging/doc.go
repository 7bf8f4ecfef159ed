// Package logging provides structured logging for voicetask.
//
// It wraps Zap with a custom trace level, optional OpenTelemetry output,
// correlation fields pulled from context (trace, recording and request IDs),
// credential redaction and level-aware sampling where errors are never
// dropped.
//
// Components take a plain *zap.Logger; binaries build one with
//
//	logger, err := logging.NewLogger(logging.FromSettings("info", "json"), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	svc := transcription.NewClient(cfg, logger.Underlying())
//
// Credential values must never be logged. Use Credential or RedactedString
// when a log line needs to show that a value was present.
package logging
