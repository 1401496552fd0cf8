// Package config holds the two configuration layers of the campaign site: a
// TOML bootstrap file read once at startup (listen address, database,
// SMTP) and a JSON-persisted registry of runtime flags for everything an
// operator may want to change without a restart.
package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

type Common struct {
	Debug      bool   `toml:"debug"`
	ListenAddr string `toml:"listen_addr"`
	AppURL     string `toml:"app_url"`
}

type Database struct {
	DSN string `toml:"dsn"`
}

type Email struct {
	Host     string `toml:"host"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type ConfigStruct struct {
	Common   Common   `toml:"common"`
	Database Database `toml:"database"`
	Email    Email    `toml:"email"`
}

var c ConfigStruct

// Exported bootstrap sections, filled in by Load.
var (
	CommonConf   = &c.Common
	DatabaseConf = &c.Database
	EmailConf    = &c.Email
)

func Load(path string) error {
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return fmt.Errorf("could not decode config file: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		slog.Warn("Unknown keys in config file", slog.Any("keys", undec))
	}
	if c.Common.ListenAddr == "" {
		c.Common.ListenAddr = ":8080"
	}
	return nil
}

var (
	flagPath  string
	flagMapMu sync.RWMutex
	allFlags  = make(map[string]any)
)

type configFlag interface {
	getPtr() any
	sneakUpdate(newVal any) error
}

type Flag[T any] interface {
	Value() T
	Update(T)
	InternalName() string
	HumanName() string
}

type flag[T any] struct {
	mu        sync.RWMutex
	name      string
	val       T
	humanName string
}

func (f *flag[T]) Value() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.val
}

func (f *flag[T]) InternalName() string {
	return f.name
}

func (f *flag[T]) HumanName() string {
	return f.humanName
}

func (f *flag[T]) Update(newVal T) {
	defer func() {
		if err := Save(context.Background()); err != nil {
			slog.WarnContext(context.Background(), "Couldn't save flag", slog.Any("err", err))
		}
	}()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.val = newVal
}

func (f *flag[T]) getPtr() any {
	return &f.val
}

func (f *flag[T]) sneakUpdate(newVal any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch v := newVal.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(v, &f.val); err != nil {
			return fmt.Errorf("invalid key, flag expected %T", f.val)
		}
		return nil
	default:
		return fmt.Errorf("expected json.RawMessage, got %T", newVal)
	}
}

func GenFlag[T any](name string, defaultVal T, readableName string) Flag[T] {
	flagMapMu.Lock()
	defer flagMapMu.Unlock()
	f := &flag[T]{name: name, val: defaultVal, humanName: readableName}
	allFlags[name] = f
	return f
}

func GetFlags[T any]() []Flag[T] {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	var flags []Flag[T]
	for _, flg := range allFlags {
		flag, ok := flg.(*flag[T])
		if ok {
			flags = append(flags, flag)
		}
	}
	slices.SortFunc(flags, func(a, b Flag[T]) int {
		return cmp.Compare(a.InternalName(), b.InternalName())
	})
	return flags
}

func SetFlagPath(path string) {
	flagPath = path
}

// LoadFlags reads the flag file and applies CS_FLAG_OVERRIDES from the
// environment on top, the latter mostly useful in deployment manifests.
func LoadFlags(ctx context.Context) error {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	if flagPath == "" {
		return errors.New("invalid flag path")
	}
	f, err := os.OpenFile(flagPath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var data = make(map[string]json.RawMessage)
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for key, confVal := range data {
		val, ok := allFlags[key]
		if !ok {
			slog.WarnContext(ctx, "Unknown config key", slog.String("key", key))
			continue
		}
		if v, ok := val.(configFlag); ok {
			if err := v.sneakUpdate(confVal); err != nil {
				slog.WarnContext(ctx, "Couldn't update key", slog.String("key", key), slog.Any("err", err))
			}
		}
	}

	overrides := strings.Split(os.Getenv("CS_FLAG_OVERRIDES"), ",")
	for _, override := range overrides {
		if override == "" {
			continue
		}
		key, val, found := strings.Cut(override, "=")
		if !found {
			slog.WarnContext(ctx, "Invalid override", slog.String("override", override))
			continue
		}
		flg, ok := allFlags[key]
		if !ok {
			slog.WarnContext(ctx, "Could not find flag", slog.String("name", key))
			continue
		}
		switch f := flg.(type) {
		case *flag[string]:
			// Strings are a bit special since overrides may not have quotes
			f.Update(val)
		case configFlag:
			if err := json.Unmarshal([]byte(val), f.getPtr()); err != nil {
				slog.WarnContext(ctx, "Invalid flag override", slog.Any("err", err), slog.String("key", key))
			}
		default:
			slog.WarnContext(ctx, "Unknown flag type")
		}
	}

	return nil
}

func Save(ctx context.Context) error {
	if flagPath == "" {
		return errors.New("invalid flag path")
	}
	if err := os.MkdirAll(filepath.Dir(flagPath), 0755); err != nil {
		return err
	}
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()

	file, err := os.Create(flagPath)
	if err != nil {
		return err
	}

	var data = make(map[string]any)
	for key, flg := range allFlags {
		switch v := flg.(type) {
		case configFlag:
			data[key] = v.getPtr()
		default:
			slog.WarnContext(ctx, "Unknown flag type", slog.Any("type", reflect.TypeOf(v)))
		}
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "\t")
	if err := enc.Encode(data); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}
