package metrics

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/egregors/plantdash/log"
)

const (
	cleanerWorkerSleep = 30 * time.Second
)

type DumpFn func() error

type Option func(m *InMem)

func WithRetention(dur time.Duration) Option {
	return func(m *InMem) {
		m.retentionDuration = dur
	}
}

// WithBackup restores the timeline from path on start and writes it back on dump.
func WithBackup(path string) Option {
	return func(m *InMem) {
		m.backupPath = path
	}
}

// WithAutosave dumps the timeline every period, if backup is on.
func WithAutosave(period time.Duration) Option {
	return func(m *InMem) {
		m.autosave = period
	}
}

type Value struct {
	T time.Time
	V float64
}

// InMem is a gauge timeline kept in memory and trimmed by a retention policy.
type InMem struct {
	mu            *sync.RWMutex
	GaugeTimeLine map[string][]Value

	backupPath        string
	retentionDuration time.Duration
	autosave          time.Duration

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func New(opts ...Option) (m *InMem, commitDump DumpFn) {
	m = &InMem{
		mu:            &sync.RWMutex{},
		GaugeTimeLine: make(map[string][]Value),
		now:           time.Now,
		stop:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.backupPath != "" {
		log.Info.Println("try to restore from dump")
		if err := m.Restore(); err != nil {
			log.Erro.Printf("not this time: %s", err.Error())
		} else {
			log.Info.Println("got from dump:")
			for k, v := range m.GaugeTimeLine {
				log.Info.Printf("-- %s: %d", k, len(v))
			}
		}
	}

	go m.cleaner()
	go m.autosaver()

	commitDump = func() error {
		m.once.Do(func() { close(m.stop) })

		if m.backupPath != "" {
			return m.Dump()
		}

		return nil
	}

	return m, commitDump
}

func (m *InMem) Gauge(key string, val float64) {
	log.Debg.Printf("gauge %s: %v", key, val)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.GaugeTimeLine[key] = append(m.GaugeTimeLine[key], Value{T: m.now(), V: val})
}

// Avg returns hourly averages of key over the last dur, oldest first.
func (m *InMem) Avg(key string, dur time.Duration) []Value {
	m.mu.RLock()
	data, ok := m.GaugeTimeLine[key]
	if !ok {
		m.mu.RUnlock()

		return nil
	}

	start, end := m.now().Add(-dur), m.now()
	var durData []Value
	for _, val := range data {
		if val.T.After(start) && !val.T.After(end) {
			durData = append(durData, val)
		}
	}
	m.mu.RUnlock()

	hAvg := make(map[time.Time][]float64)
	for _, v := range durData {
		t := v.T.Truncate(time.Hour)
		hAvg[t] = append(hAvg[t], v.V)
	}

	avg := make([]Value, 0, len(hAvg))
	for k, v := range hAvg {
		sum := 0.0
		for _, vv := range v {
			sum += vv
		}

		avg = append(avg, Value{T: k, V: sum / float64(len(v))})
	}

	sort.Slice(avg, func(i, j int) bool {
		return avg[i].T.Before(avg[j].T)
	})

	return avg
}

func (m *InMem) cleaner() {
	if m.retentionDuration == 0 {
		log.Info.Println("retention isn't set up")

		return
	}

	for {
		select {
		case <-m.stop:
			return
		case <-time.After(cleanerWorkerSleep):
		}

		if diff := m.cleanup(); diff != 0 {
			log.Debg.Printf("cleaner removed %d gauges by retention policy", diff)
		}
	}
}

func (m *InMem) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retentionDuration)
	var totalVs, totalNewVs int
	for k, v := range m.GaugeTimeLine {
		var newV []Value
		for _, vv := range v {
			if vv.T.After(cutoff) {
				newV = append(newV, vv)
			}
		}
		totalVs += len(v)
		totalNewVs += len(newV)
		m.GaugeTimeLine[k] = newV
	}

	return totalVs - totalNewVs
}

func (m *InMem) autosaver() {
	if m.autosave == 0 || m.backupPath == "" {
		return
	}

	for {
		select {
		case <-m.stop:
			return
		case <-time.After(m.autosave):
		}

		if err := m.Dump(); err != nil {
			log.Erro.Printf("can't autosave metrics: %s", err.Error())
		}
	}
}

func (m *InMem) Dump() error {
	buf := new(bytes.Buffer)
	encoder := gob.NewEncoder(buf)

	m.mu.RLock()
	err := encoder.Encode(m.GaugeTimeLine)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("can't encode items: %w", err)
	}

	err = os.WriteFile(m.backupPath, buf.Bytes(), 0o600)
	if err != nil {
		return fmt.Errorf("can't save dump: %w", err)
	}

	return nil
}

func (m *InMem) Restore() error {
	f, err := os.ReadFile(m.backupPath)
	if err != nil {
		return fmt.Errorf("can't read dump: %w", err)
	}

	tl := make(map[string][]Value)
	if err = gob.NewDecoder(bytes.NewBuffer(f)).Decode(&tl); err != nil {
		return fmt.Errorf("can't decode items: %w", err)
	}

	m.mu.Lock()
	m.GaugeTimeLine = tl
	m.mu.Unlock()

	return nil
}
