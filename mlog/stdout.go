package mlog

import (
	"fmt"
	"log"
	"os"
)

// stdoutLogger 没有配置日志目录时使用, 同步写标准输出, 不切割
type stdoutLogger struct {
	level Level
	out   *log.Logger
}

func newStdoutLogger(level Level) *stdoutLogger {
	return &stdoutLogger{
		level: level,
		out:   log.New(os.Stdout, "", log.Ldate|log.Lmicroseconds),
	}
}

func (l *stdoutLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

// output 写一行; Fatal等级写完直接退出进程
func (l *stdoutLogger) output(level Level, msg string) {
	l.out.Println(getLevelTag(level) + msg)
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *stdoutLogger) log(level Level, args []any) {
	if l.IsLevelEnabled(level) {
		l.output(level, fmt.Sprint(args...))
	}
}

func (l *stdoutLogger) logf(level Level, format string, args []any) {
	if l.IsLevelEnabled(level) {
		l.output(level, fmt.Sprintf(format, args...))
	}
}

func (l *stdoutLogger) Trace(v ...any)                  { l.log(TraceLevel, v) }
func (l *stdoutLogger) Debug(v ...any)                  { l.log(DebugLevel, v) }
func (l *stdoutLogger) Info(v ...any)                   { l.log(InfoLevel, v) }
func (l *stdoutLogger) Notice(v ...any)                 { l.log(NoticeLevel, v) }
func (l *stdoutLogger) Warn(v ...any)                   { l.log(WarnLevel, v) }
func (l *stdoutLogger) Error(v ...any)                  { l.log(ErrorLevel, v) }
func (l *stdoutLogger) Fatal(v ...any)                  { l.log(FatalLevel, v) }
func (l *stdoutLogger) Tracef(format string, v ...any)  { l.logf(TraceLevel, format, v) }
func (l *stdoutLogger) Debugf(format string, v ...any)  { l.logf(DebugLevel, format, v) }
func (l *stdoutLogger) Infof(format string, v ...any)   { l.logf(InfoLevel, format, v) }
func (l *stdoutLogger) Noticef(format string, v ...any) { l.logf(NoticeLevel, format, v) }
func (l *stdoutLogger) Warnf(format string, v ...any)   { l.logf(WarnLevel, format, v) }
func (l *stdoutLogger) Errorf(format string, v ...any)  { l.logf(ErrorLevel, format, v) }
func (l *stdoutLogger) Fatalf(format string, v ...any)  { l.logf(FatalLevel, format, v) }
