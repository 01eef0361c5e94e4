package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/YAtOff/lansync/internal/decision"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/observability"
	"github.com/YAtOff/lansync/internal/store"
)

// statLocalNode builds a model.LocalNode snapshot of relPath under the
// session's root, or nil if the file doesn't exist locally. CreatedTime is
// approximated with ModTime since os.FileInfo carries no portable creation
// timestamp; Send applies the same approximation when writing a StoredNode,
// so the two stay comparable.
func (s *Session) statLocalNode(relPath string) (*model.LocalNode, error) {
	abs := filepath.Join(s.RootPath, relPath)
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	checksum, err := model.FileChecksum(abs)
	if err != nil {
		return nil, err
	}
	return &model.LocalNode{
		Path:         relPath,
		Checksum:     checksum,
		Size:         info.Size(),
		ModifiedTime: info.ModTime(),
		CreatedTime:  info.ModTime(),
	}, nil
}

// RunSyncRound drives one pass of spec.md's sync loop over every node key
// this namespace knows about (from either the local store or the event
// log), dispatching each decision.HandleNode verdict to Send, Receive, or a
// store mutation. Node keys are looked up by their stored path so Send can
// resolve a local file's relative path from its key.
func (s *Session) RunSyncRound(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "sync.round")
	defer span.End()

	keys, err := s.Store.AllNodeKeys(s.Namespace)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.syncOne(ctx, key); err != nil {
			s.Logger.Error(err, "sync round: node failed, will retry next round")
		}
	}
	return nil
}

func (s *Session) syncOne(ctx context.Context, key string) error {
	remote, err := s.Store.GetRemoteNode(s.Namespace, key)
	if errors.Is(err, store.ErrNodeNotFound) {
		remote = nil
	} else if err != nil {
		return err
	}

	stored, err := s.Store.GetStoredNode(s.Namespace, s.RootFolder, key)
	if errors.Is(err, store.ErrNodeNotFound) {
		stored = nil
	} else if err != nil {
		return err
	}

	relPath := ""
	switch {
	case remote != nil:
		relPath = remote.Path
	case stored != nil:
		relPath = stored.Path
	default:
		return nil
	}

	local, err := s.statLocalNode(relPath)
	if err != nil {
		return err
	}

	action := decision.HandleNode(remote, local, stored)
	s.Metrics.RecordSyncAction(action.Kind.String())

	switch action.Kind {
	case decision.Nop:
		return nil

	case decision.Download:
		return s.Receive(ctx, *remote)

	case decision.Upload:
		// No pre-edit copy of the file is kept around once it changes on
		// disk, so there is no basis to diff against here: stored.Path
		// names the same on-disk file Send is about to read as its new
		// content, not the content it held before this edit. Passing it as
		// BasisPath would make chunkForSend's delta path match new-file
		// windows against the old signature and then read the "matched"
		// bytes back out of the new file at the old block offsets — wrong
		// whenever the edit isn't a same-length in-place change. Leaving
		// BasisPath empty makes chunkForSend fall back to fixed-size
		// chunking, which is always correct.
		_, err := s.Send(ctx, SendParams{
			Key:       key,
			RelPath:   relPath,
			LocalPath: filepath.Join(s.RootPath, relPath),
			Stored:    stored,
		})
		return err

	case decision.DeleteLocal:
		if err := os.Remove(filepath.Join(s.RootPath, relPath)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return s.Store.DeleteStoredNode(s.Namespace, s.RootFolder, key)

	case decision.DeleteRemote:
		return s.Store.DeleteStoredNode(s.Namespace, s.RootFolder, key)

	case decision.SaveStored:
		saved := model.StoredNode{
			Namespace:         s.Namespace,
			RootFolder:        s.RootFolder,
			Key:               key,
			Path:              relPath,
			Checksum:          remote.Checksum,
			Parts:             remote.Parts,
			Signature:         remote.Signature,
			LocalModifiedTime: local.ModifiedTime,
			LocalCreatedTime:  local.CreatedTime,
			Ready:             true,
		}
		return s.Store.SaveStoredNode(saved)

	case decision.DeleteStored:
		return s.Store.DeleteStoredNode(s.Namespace, s.RootFolder, key)

	case decision.Conflict:
		s.Logger.ConflictDetected(s.Namespace, key)
		return nil

	default:
		return nil
	}
}
