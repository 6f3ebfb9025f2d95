package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/Septrum101/aliddns/config"
)

// Logger owns the file sinks of the standard logrus logger.
type Logger struct {
	sync.Mutex
	path   string
	prefix string
	daily  *os.File
	latest *os.File
	cron   *cron.Cron
	now    func() time.Time
}

// Init configures the standard logger: console output at the console level
// and, when enabled, a dated daily file plus latest.log at the file level.
func Init(c *config.Log) (*Logger, error) {
	consoleLevel := parseLevel(c.ConsoleLevel)
	log.SetOutput(io.Discard)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})

	l := &Logger{
		path:   c.Path,
		prefix: c.Prefix,
		now:    time.Now,
	}
	hooks := []log.Hook{newWriterHook(os.Stdout, consoleLevel, &log.TextFormatter{FullTimestamp: true})}
	maxLevel := consoleLevel

	if c.EnableFile {
		fileLevel := parseLevel(c.FileLevel)
		if fileLevel > maxLevel {
			maxLevel = fileLevel
		}
		if err := os.MkdirAll(l.path, 0o755); err != nil {
			return nil, err
		}

		latest, err := os.OpenFile(filepath.Join(l.path, "latest.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}
		l.latest = latest
		if err := l.rotate(); err != nil {
			latest.Close()
			return nil, err
		}

		fileFormatter := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
		hooks = append(hooks,
			newWriterHook(latest, fileLevel, fileFormatter),
			newWriterHook(writerFunc(l.writeDaily), fileLevel, fileFormatter),
		)

		l.cron = cron.New()
		if _, err := l.cron.AddFunc("@daily", func() {
			if err := l.rotate(); err != nil {
				log.Errorf("[logger] rotate: %v", err)
			}
		}); err != nil {
			l.Close()
			return nil, err
		}
		l.cron.Start()
	}

	log.SetLevel(maxLevel)
	log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	for _, h := range hooks {
		log.AddHook(h)
	}

	return l, nil
}

func parseLevel(s string) log.Level {
	l, err := log.ParseLevel(s)
	if err != nil {
		fmt.Printf("logger: invalid level %q, use default level: info\n", s)
		return log.InfoLevel
	}
	return l
}

func (l *Logger) fileName() string {
	return filepath.Join(l.path, fmt.Sprintf("%s.%s.log", l.prefix, l.now().Format("2006-01-02")))
}

// rotate switches the daily sink to the file named after the current date.
func (l *Logger) rotate() error {
	f, err := os.OpenFile(l.fileName(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	l.Lock()
	old := l.daily
	l.daily = f
	l.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

func (l *Logger) writeDaily(p []byte) (int, error) {
	l.Lock()
	defer l.Unlock()
	if l.daily == nil {
		return len(p), nil
	}
	return l.daily.Write(p)
}

// Close stops rotation, waits for a running rotation and closes the files.
func (l *Logger) Close() error {
	if l.cron != nil {
		<-l.cron.Stop().Done()
	}

	l.Lock()
	defer l.Unlock()
	var err error
	if l.daily != nil {
		err = l.daily.Close()
		l.daily = nil
	}
	if l.latest != nil {
		if e := l.latest.Close(); err == nil {
			err = e
		}
		l.latest = nil
	}
	return err
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// writerHook sends entries up to level to one writer.
type writerHook struct {
	mu        sync.Mutex
	w         io.Writer
	levels    []log.Level
	formatter log.Formatter
}

func newWriterHook(w io.Writer, level log.Level, formatter log.Formatter) *writerHook {
	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &writerHook{w: w, levels: levels, formatter: formatter}
}

func (h *writerHook) Levels() []log.Level {
	return h.levels
}

func (h *writerHook) Fire(e *log.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(b)
	return err
}
