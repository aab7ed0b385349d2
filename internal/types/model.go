package types

import "time"

// NoContentSnapshotID is the reserved snapshot id standing in for NULL content.
const NoContentSnapshotID = "no-content"

// GlobalVersionID is the sentinel version every descriptor ultimately inherits from.
const GlobalVersionID = "global"

// Snapshot is a content-addressed JSON payload referenced by one or more changes.
// Two snapshots with identical content share the same Id; Id is never reused
// for different content. Snapshots are append-only and never mutated in place.
type Snapshot struct {
	ID      string
	Content string // raw JSON text; empty + ID==NoContentSnapshotID for tombstones
}

// IsTombstone reports whether this snapshot represents NULL content.
func (s Snapshot) IsTombstone() bool { return s.ID == NoContentSnapshotID }

// Change is a single append-only write affecting one entity in one version.
// Ordering among changes for the same (EntityID, SchemaKey, FileID) is by
// (CreatedAt, ID) descending — newer wins.
type Change struct {
	ID            string
	EntityID      string
	SchemaKey     string
	SchemaVersion string
	FileID        string
	PluginKey     string
	SnapshotID    string // NoContentSnapshotID for tombstones
	Metadata      string // JSON, may be empty
	CreatedAt     time.Time
	WriterKey     string
	VersionID     string
}

// IsTombstone reports whether this change records a deletion.
func (c Change) IsTombstone() bool { return c.SnapshotID == NoContentSnapshotID }

// ChangeSet is an unordered set of change ids accumulating in a commit.
type ChangeSet struct {
	ID        string
	ChangeIDs []string
}

// Commit is a frozen change-set with parent commits, forming a DAG.
type Commit struct {
	ID              string
	ChangeSetID     string
	ParentCommitIDs []string
	AuthorAccountID string // optional, empty if unset
	MetaChangeIDs   []string
}

// CommitEdge is the redundant (parent,child) pair kept for fast reverse traversal.
type CommitEdge struct {
	ParentID string
	ChildID  string
}

// VersionDescriptor names a branch and its inheritance parent.
type VersionDescriptor struct {
	ID                    string
	Name                  string
	InheritsFromVersionID string // may be GlobalVersionID
	Hidden                bool
}

// VersionPointer tracks a version's current tip and working commits.
type VersionPointer struct {
	ID               string
	CommitID         string // tip commit
	WorkingCommitID  string
}

// ActiveVersion is the untracked row naming the single version whose
// effective state lix_state exposes for this process.
type ActiveVersion struct {
	ID        string
	VersionID string
}

// ActiveAccount is the untracked row naming the account attributed to writes
// made by this process, mirroring ActiveVersion. Supplemented from
// original_source (lix_active_account_view_write.rs) — not named explicitly
// in spec.md but implied by lix_change_author.
type ActiveAccount struct {
	ID        string
	AccountID string
}

// FileDescriptor is a file entity; its path is derived by walking directory ancestors.
type FileDescriptor struct {
	ID          string
	DirectoryID string // empty if at version root
	Name        string
	Extension   string
	Metadata    string // JSON
	Hidden      bool
}

// DirectoryDescriptor is a directory entity; its path is /name1/name2/.
type DirectoryDescriptor struct {
	ID       string
	ParentID string // empty if top-level
	Name     string
	Hidden   bool
}

// StoredSchema is a user- or system-provided JSON Schema decorated with the
// x-lix-* extensions described in spec.md §3.
type StoredSchema struct {
	SchemaKey         string
	SchemaVersion     string
	Definition        string // raw JSON text of the full schema document
	PrimaryKey        []string // JSON pointers, e.g. "/id"
	Unique            [][]string
	ForeignKeys       []ForeignKey
	Immutable         bool
	OverrideLixcols   map[string]string
	IsEntityView      bool
}

// EntityID is the persisted entity id for a stored schema: "{key}~{version}".
func (s StoredSchema) EntityID() string { return s.SchemaKey + "~" + s.SchemaVersion }

// ForeignKey references another schema's primary or unique key.
type ForeignKey struct {
	Properties     []string
	ReferencesKey  string
	ReferencesProp []string
}

// ExecuteOptions configures one Engine.Execute call.
type ExecuteOptions struct {
	WriterKey         string
	AccessToInternal  bool
}

// CommitEvent is a single changed entity published on the state-commit stream.
type CommitEvent struct {
	SchemaKey string
	EntityID  string
	WriterKey string
	FileID    string
	VersionID string
}

// CommitBatch is one published batch of commit events, emitted after an
// execute() call (or transaction commit) completes.
type CommitBatch struct {
	Changes []CommitEvent
}

// StreamFilter restricts which commit events a subscriber receives.
type StreamFilter struct {
	SchemaKeys        []string // inclusion list; empty = all
	ExcludeWriterKeys []string
}
