package decision

import (
	"testing"
	"time"

	"github.com/YAtOff/lansync/internal/model"
)

func remoteNode(checksum string) *model.RemoteNode {
	return &model.RemoteNode{Key: "k", Checksum: checksum}
}

func localNode(checksum string, modified time.Time) *model.LocalNode {
	return &model.LocalNode{Path: "a/b", Checksum: checksum, ModifiedTime: modified}
}

func storedNode(checksum string, modified time.Time) *model.StoredNode {
	return &model.StoredNode{Key: "k", Checksum: checksum, LocalModifiedTime: modified, Ready: true}
}

func unreadyStoredNode(checksum string, modified time.Time) *model.StoredNode {
	return &model.StoredNode{Key: "k", Checksum: checksum, LocalModifiedTime: modified, Ready: false}
}

func TestHandleNode_EightCases(t *testing.T) {
	t0 := time.Unix(1000, 0)

	cases := []struct {
		name   string
		remote *model.RemoteNode
		local  *model.LocalNode
		stored *model.StoredNode
		want   Kind
	}{
		{"all absent", nil, nil, nil, Nop},
		{"stored only", nil, nil, storedNode("c", t0), DeleteStored},
		{"local only", nil, localNode("c", t0), nil, Upload},
		{"local and stored", nil, localNode("c", t0), storedNode("c", t0), DeleteLocal},
		{"remote only", remoteNode("c"), nil, nil, Download},
		{"remote and stored", remoteNode("c"), nil, storedNode("c", t0), DeleteRemote},
		{"remote and local, same checksum", remoteNode("c"), localNode("c", t0), nil, SaveStored},
		{"remote and local, different checksum", remoteNode("c1"), localNode("c2", t0), nil, Conflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HandleNode(tc.remote, tc.local, tc.stored)
			if got.Kind != tc.want {
				t.Fatalf("HandleNode() = %v, want %v", got.Kind, tc.want)
			}
		})
	}
}

func TestHandleNode_AllThreePresent(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)

	cases := []struct {
		name   string
		remote *model.RemoteNode
		local  *model.LocalNode
		stored *model.StoredNode
		want   Kind
	}{
		{
			"neither side changed",
			remoteNode("c"), localNode("c", t0), storedNode("c", t0),
			Nop,
		},
		{
			"local changed only",
			remoteNode("c"), localNode("c2", t1), storedNode("c", t0),
			Upload,
		},
		{
			"remote changed only",
			remoteNode("c2"), localNode("c", t0), storedNode("c", t0),
			Download,
		},
		{
			"both changed, same result",
			remoteNode("c2"), localNode("c2", t1), storedNode("c", t0),
			SaveStored,
		},
		{
			"both changed, diverged",
			remoteNode("c2"), localNode("c3", t1), storedNode("c", t0),
			Conflict,
		},
		{
			"interrupted placeholder forces redownload even when checksums agree",
			remoteNode("c"), localNode("c", t0), unreadyStoredNode("c", t0),
			Download,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HandleNode(tc.remote, tc.local, tc.stored)
			if got.Kind != tc.want {
				t.Fatalf("HandleNode() = %v, want %v", got.Kind, tc.want)
			}
		})
	}
}
