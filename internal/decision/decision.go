// Package decision implements lansync's component G: the pure function
// that compares what the event log, the local store, and the filesystem
// each know about one node and decides what, if anything, to do about it.
package decision

import "github.com/YAtOff/lansync/internal/model"

// Kind identifies what a SyncAction asks the caller to do.
type Kind int

const (
	// Nop means the three views already agree; nothing to do.
	Nop Kind = iota
	// Download fetches remote's content and materializes it locally.
	Download
	// Upload publishes local's content as a new remote event.
	Upload
	// DeleteLocal removes the local file; the store still has it recorded
	// but nothing asks for it anymore.
	DeleteLocal
	// DeleteRemote means the event log and the store both still have the
	// node but its local file is gone: it was deleted on this device.
	DeleteRemote
	// SaveStored records remote and local as already agreeing, with no
	// transfer needed.
	SaveStored
	// DeleteStored forgets a store record nothing references anymore.
	DeleteStored
	// Conflict means both sides changed since the last known state and
	// disagree on content; the caller must resolve it out of band.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Nop:
		return "nop"
	case Download:
		return "download"
	case Upload:
		return "upload"
	case DeleteLocal:
		return "delete_local"
	case DeleteRemote:
		return "delete_remote"
	case SaveStored:
		return "save_stored"
	case DeleteStored:
		return "delete_stored"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Action is the outcome of comparing one node's remote, local, and stored
// views: what to do, and the records involved.
type Action struct {
	Kind   Kind
	Remote *model.RemoteNode
	Local  *model.LocalNode
	Stored *model.StoredNode
}

func action(kind Kind, remote *model.RemoteNode, local *model.LocalNode, stored *model.StoredNode) Action {
	return Action{Kind: kind, Remote: remote, Local: local, Stored: stored}
}

// HandleNode decides what to do about one node, given what the event log
// says (remote), what's actually on disk (local), and what the local store
// last recorded (stored). Any of the three may be nil, meaning that view has
// no knowledge of the node. This mirrors handle_node's branching over the
// eight combinations of (remote present?, local present?, stored present?)
// exactly, plus the update-direction tie-break within the all-three-present
// case.
func HandleNode(remote *model.RemoteNode, local *model.LocalNode, stored *model.StoredNode) Action {
	switch {
	case remote == nil && local == nil && stored == nil:
		return action(Nop, remote, local, stored)
	case remote == nil && local == nil && stored != nil:
		return action(DeleteStored, remote, local, stored)
	case remote == nil && local != nil && stored == nil:
		return action(Upload, remote, local, stored)
	case remote == nil && local != nil && stored != nil:
		return action(DeleteLocal, remote, local, stored)
	case remote != nil && local == nil && stored == nil:
		return action(Download, remote, local, stored)
	case remote != nil && local == nil && stored != nil:
		return action(DeleteRemote, remote, local, stored)
	case remote != nil && local != nil && stored == nil:
		if remote.Checksum == local.Checksum {
			return action(SaveStored, remote, local, stored)
		}
		return action(Conflict, remote, local, stored)
	default: // remote != nil && local != nil && stored != nil
		if !stored.Ready {
			// A previously-interrupted download: the placeholder never finished,
			// so treat it as needing a fresh download regardless of checksums.
			return action(Download, remote, local, stored)
		}
		localUpdated := local.Updated(stored)
		remoteUpdated := remote.Updated(stored)
		switch {
		case localUpdated && remoteUpdated:
			if remote.Checksum == local.Checksum {
				return action(SaveStored, remote, local, stored)
			}
			return action(Conflict, remote, local, stored)
		case localUpdated:
			return action(Upload, remote, local, stored)
		case remoteUpdated:
			return action(Download, remote, local, stored)
		default:
			return action(Nop, remote, local, stored)
		}
	}
}
