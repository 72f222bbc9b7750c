package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	kst = time.FixedZone("KST", 9*60*60)
)

type Entry struct {
	Time, Symbol, Side, Reason string
	Qty                        int
	Price                      float64
	PnL                        *float64       `json:"pnl,omitempty"`
	Extra                      map[string]any `json:"extra,omitempty"`
}

type SignalEntry struct {
	Time, ID, Symbol, Direction, Reason, Status string
	Price                                       float64
	Qty                                         int
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	d := t.In(kst).Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func signalsFilepath(t time.Time) string {
	d := t.In(kst).Format("2006-01-02")
	return filepath.Join(logDir(), "signals", d+".txt")
}

// Append writes a filled order to the daily trade log.
func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(kst)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now), e)
}

// AppendSignal writes a signal creation or resolution to the daily signal log.
func AppendSignal(e SignalEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(kst)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(signalsFilepath(now), e)
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips log files older than the retention window and removes
// the originals.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil {
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if info.ModTime().Before(cutoff) {
			gz := p + ".gz"
			if _, e2 := os.Stat(gz); e2 == nil {
				_ = os.Remove(p)
				return nil
			}

			in, e3 := os.Open(p)
			if e3 != nil {
				return nil
			}
			defer in.Close()

			out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if e4 != nil {
				return nil
			}
			gw := gzip.NewWriter(out)
			if _, e5 := io.Copy(gw, in); e5 == nil {
				_ = gw.Close()
				_ = out.Close()
				_ = os.Remove(p)
			} else {
				_ = gw.Close()
				_ = out.Close()
			}
		}
		return nil
	})
}
