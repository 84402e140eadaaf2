package mlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger Notice和Trace在zap里没有对应等级, 分别落到Info和Debug
type zapLogger struct {
	level Level
	sugar *zap.SugaredLogger
}

func newZapLogger(z *zap.Logger, level Level) *zapLogger {
	return &zapLogger{
		level: level,
		// 跳过 mlog.Xxx -> zapLogger.Xxx -> log/logf 三层, caller指向业务代码
		sugar: z.WithOptions(zap.AddCallerSkip(3)).Sugar(),
	}
}

func (l *zapLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level && l.sugar.Desugar().Core().Enabled(zapLevel(level))
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case FatalLevel:
		return zapcore.FatalLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case NoticeLevel, InfoLevel:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func (l *zapLogger) log(level Level, args []any) {
	if !l.IsLevelEnabled(level) {
		return
	}
	switch zapLevel(level) {
	case zapcore.FatalLevel:
		l.sugar.Fatal(args...)
	case zapcore.ErrorLevel:
		l.sugar.Error(args...)
	case zapcore.WarnLevel:
		l.sugar.Warn(args...)
	case zapcore.InfoLevel:
		l.sugar.Info(args...)
	default:
		l.sugar.Debug(args...)
	}
}

func (l *zapLogger) logf(level Level, format string, args []any) {
	if !l.IsLevelEnabled(level) {
		return
	}
	switch zapLevel(level) {
	case zapcore.FatalLevel:
		l.sugar.Fatalf(format, args...)
	case zapcore.ErrorLevel:
		l.sugar.Errorf(format, args...)
	case zapcore.WarnLevel:
		l.sugar.Warnf(format, args...)
	case zapcore.InfoLevel:
		l.sugar.Infof(format, args...)
	default:
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Trace(v ...any)                  { l.log(TraceLevel, v) }
func (l *zapLogger) Debug(v ...any)                  { l.log(DebugLevel, v) }
func (l *zapLogger) Info(v ...any)                   { l.log(InfoLevel, v) }
func (l *zapLogger) Notice(v ...any)                 { l.log(NoticeLevel, v) }
func (l *zapLogger) Warn(v ...any)                   { l.log(WarnLevel, v) }
func (l *zapLogger) Error(v ...any)                  { l.log(ErrorLevel, v) }
func (l *zapLogger) Fatal(v ...any)                  { l.log(FatalLevel, v) }
func (l *zapLogger) Tracef(format string, v ...any)  { l.logf(TraceLevel, format, v) }
func (l *zapLogger) Debugf(format string, v ...any)  { l.logf(DebugLevel, format, v) }
func (l *zapLogger) Infof(format string, v ...any)   { l.logf(InfoLevel, format, v) }
func (l *zapLogger) Noticef(format string, v ...any) { l.logf(NoticeLevel, format, v) }
func (l *zapLogger) Warnf(format string, v ...any)   { l.logf(WarnLevel, format, v) }
func (l *zapLogger) Errorf(format string, v ...any)  { l.logf(ErrorLevel, format, v) }
func (l *zapLogger) Fatalf(format string, v ...any)  { l.logf(FatalLevel, format, v) }
