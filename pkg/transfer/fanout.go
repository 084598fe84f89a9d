package transfer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
)

// SendToMany sends env to every target concurrently and returns how many
// succeeded. Every target is attempted; failures are joined as TargetErrors.
func (s *Sender) SendToMany(ctx context.Context, targets []string, env protocol.Envelope, obf obfuscate.Settings) (int, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for _, t := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			err := s.Send(ctx, target, env, obf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, &TargetError{Target: target, Err: err})
				return
			}
			ok++
		}(t)
	}
	wg.Wait()
	if len(errs) > 0 {
		zap.L().Info("fan-out finished with failures", zap.Int("ok", ok), zap.Int("failed", len(errs)))
	}
	return ok, errors.Join(errs...)
}

// File is one entry of a collection send.
type File struct {
	Name string
	Data []byte
}

// SendCollection sends files to target in order, tagging all of them with one
// fresh collection id. It stops at the first failure and reports how many
// files were delivered.
func (s *Sender) SendCollection(ctx context.Context, target string, files []File, obf obfuscate.Settings) (string, int, error) {
	id := uuid.NewString()
	for i, f := range files {
		if err := s.Send(ctx, target, protocol.NewCollectionFile(id, f.Name, f.Data), obf); err != nil {
			return id, i, err
		}
	}
	return id, len(files), nil
}
