// Package nlog is the process-wide logger shared by the space server, the
// object host, and the CSEG node binaries: severity levels, a buffered
// writer flushed only by explicit Flush calls (the process calls Flush on
// shutdown), and per-role log file naming.
// A partitioning/proximity service ticking every 100ms has no need for a
// double-buffered, pooled-buffer logger tuned for gigabytes of per-request
// I/O logs, so this is a single mutex-guarded buffered writer instead,
// keeping only the public surface (severity levels, Flush, SetTitle).
/*
 * Copyright (c) 2024-2026, Sirikata Space Authors. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevTag = [...]string{"I", "W", "E"}

var (
	toStderr     bool
	alsoToStderr bool
	logDir       string
	role         string
	title        string

	mu  sync.Mutex
	out *bufio.Writer
	fh  *os.File

	onceInit sync.Once
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func SetLogDirRole(dir, r string) { logDir, role = dir, r }
func SetTitle(s string)           { title = s }

func sname() string {
	if title != "" {
		return title
	}
	if role != "" {
		return role
	}
	return "space"
}

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func initFiles() {
	if toStderr || logDir == "" {
		return
	}
	_ = os.MkdirAll(logDir, 0o755)
	f, err := os.OpenFile(filepath.Join(logDir, InfoLogName()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nlog: %v\n", err)
		return
	}
	fh = f
	out = bufio.NewWriterSize(fh, 64*1024)
}

func log(sev severity, depth int, format string, args ...any) {
	onceInit.Do(initFiles)

	line := render(sev, depth+1, format, args...)

	switch {
	case !flag.Parsed():
		os.Stderr.WriteString("Error: logging before flag.Parse: ")
		os.Stderr.WriteString(line)
	case toStderr:
		os.Stderr.WriteString(line)
	case alsoToStderr || sev >= sevWarn:
		os.Stderr.WriteString(line)
		write(line)
	default:
		write(line)
	}
}

func write(line string) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return
	}
	out.WriteString(line)
}

func render(sev severity, depth int, format string, args ...any) string {
	_, file, ln, ok := runtime.Caller(depth + 1)
	if !ok {
		file, ln = "???", 0
	} else {
		file = filepath.Base(file)
	}
	now := time.Now()
	var msg string
	if format == "" {
		msg = fmt.Sprint(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	return fmt.Sprintf("%s %s %s:%s] %s\n", sevTag[sev], now.Format("0102 15:04:05.000000"),
		file, strconv.Itoa(ln), msg)
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush flushes buffered output. Called from the shutdown path once a
// shutdown signal is observed.
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		out.Flush()
	}
	if ex && fh != nil {
		fh.Sync()
		fh.Close()
	}
}
