package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// SchemaVersion is stamped on every record written by this package.
const SchemaVersion = 1

var (
	ErrCorrupt     = errors.New("kv: corrupt record")
	ErrNewerSchema = errors.New("kv: record written by a newer schema")
)

type envelope struct {
	V    *int            `json:"v"`
	Data json.RawMessage `json:"data"`
}

func Encode[T any](v T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	ver := SchemaVersion
	b, err := json.Marshal(envelope{V: &ver, Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode accepts enveloped records and bare legacy values, which are read
// as version 1.
func Decode[T any](raw string, out *T) error {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.V != nil && env.Data != nil {
		if *env.V > SchemaVersion {
			return fmt.Errorf("%w: v%d", ErrNewerSchema, *env.V)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// Load reads and decodes key. A missing key yields ok=false.
func Load[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := Decode(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func Save[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := Encode(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}

// UpdateJSON is Update over a decoded value. Undecodable records are handed
// to fn as absent so one bad write never locks a key forever.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(v *T, ok bool) error) (T, error) {
	var result T
	_, err := Update(ctx, s, key, func(cur string, ok bool) (string, error) {
		var v T
		if ok {
			if derr := Decode(cur, &v); derr != nil {
				if errors.Is(derr, ErrNewerSchema) {
					return "", derr
				}
				var zero T
				v, ok = zero, false
			}
		}
		if err := fn(&v, ok); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = v
			}
			return "", err
		}
		result = v
		return Encode(v)
	})
	return result, err
}
