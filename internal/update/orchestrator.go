package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/types"
)

// Result messages.
const (
	MsgUpToDate    = "Already up to date"
	MsgSuccess     = "Update completed successfully"
	MsgCancelled   = "Update cancelled by user"
	MsgFetchFailed = "Failed to fetch latest version information"
	MsgRolledBack  = "Update failed. System rolled back."
	MsgRestart     = "Please restart the application."

	confirmQuestion = "Do you want to proceed with the update?"
)

// Orchestrator runs update sessions against one installation root.
type Orchestrator struct {
	root       string
	store      VersionStore
	source     ReleaseSource
	fetcher    Fetcher
	backups    Snapshotter
	installer  *Installer
	confirmer  Confirmer
	required   []RequiredEntry
	maxBackups int
	progress   ProgressFunc
	logger     *log.Logger
	guard      *Guard
	platform   Platform
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithFetcher overrides the archive downloader.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) {
		o.fetcher = f
	}
}

// WithSnapshotter overrides the backup manager.
func WithSnapshotter(s Snapshotter) Option {
	return func(o *Orchestrator) {
		o.backups = s
	}
}

// WithConfirmer sets the prompt used when auto-confirm is off. Without one,
// an unconfirmed update is cancelled.
func WithConfirmer(c Confirmer) Option {
	return func(o *Orchestrator) {
		o.confirmer = c
	}
}

// WithRequiredEntries replaces the entries a release must contain.
func WithRequiredEntries(entries []RequiredEntry) Option {
	return func(o *Orchestrator) {
		o.required = entries
	}
}

// WithMaxBackups sets how many backups are retained after each update.
func WithMaxBackups(n int) Option {
	return func(o *Orchestrator) {
		o.maxBackups = n
	}
}

// WithProgress sets the download progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithLogger sets the session log.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithGuard shares a single-flight guard between orchestrators.
func WithGuard(g *Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// NewOrchestrator creates an orchestrator for root. Backups default to the
// root's backups directory and downloads to a plain HTTP client.
func NewOrchestrator(root string, store VersionStore, source ReleaseSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:       root,
		store:      store,
		source:     source,
		fetcher:    NewHTTPDownloader(nil),
		required:   DefaultRequiredEntries,
		maxBackups: backup.DefaultKeepCount,
		logger:     log.New(io.Discard),
		guard:      NewGuard(),
		platform:   Detect(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.backups == nil {
		o.backups = backup.NewManager(root)
	}
	o.installer = NewInstaller(root, o.required)
	return o
}

// Update checks for a newer release and, when one exists and is confirmed,
// installs it. It never panics or returns an error: every outcome is
// reported through the Result. Concurrent calls for the same root share a
// single session.
func (o *Orchestrator) Update(ctx context.Context, autoConfirm bool) Result {
	res, shared := o.guard.Do(o.root, func() Result {
		return o.run(ctx, autoConfirm)
	})
	if shared {
		o.logger.Debug("Joined update already in flight", "root", o.root)
	}
	return res
}

// Check reports whether an update is available without touching the
// installation.
func (o *Orchestrator) Check(ctx context.Context) (*CheckResult, error) {
	current, err := o.store.ReadVersion()
	if err != nil {
		return nil, newError(KindConfig, "reading installed version", err)
	}

	release, err := o.source.GetLatest(ctx)
	if err != nil {
		return nil, err
	}

	direction, _ := CompareTags(current, release.Tag)
	return &CheckResult{
		CurrentVersion: current,
		LatestVersion:  release.Tag,
		Available:      release.Tag != current,
		Direction:      direction.String(),
		Release:        release,
	}, nil
}

func (o *Orchestrator) newSession() *Session {
	return &Session{
		StagingDir: o.installer.StagingDir(),
		TempDir:    filepath.Join(o.root, types.TempDirName),
		State:      Idle,
	}
}

func (o *Orchestrator) run(ctx context.Context, autoConfirm bool) (res Result) {
	s := o.newSession()
	o.logger.Info(o.platform.Banner())

	defer func() {
		if r := recover(); r != nil {
			res = o.recoverPanic(s, r)
		}
		if err := s.Cleanup(); err != nil {
			o.logger.Warn("Failed to remove update directories", "err", err)
		}
		res.State = s.State
	}()

	o.enter(s, CheckingVersion)
	current, err := o.store.ReadVersion()
	if err != nil {
		o.enter(s, Failed)
		msg := "Error checking for updates: " + err.Error()
		o.logger.Error(msg)
		return Result{Message: msg}
	}
	s.CurrentVersion = current

	o.logger.Info("Checking for latest Niva-Console release")
	release, err := o.source.GetLatest(ctx)
	if err != nil {
		o.enter(s, Failed)
		o.logger.Error("Update check failed", "err", err)
		return Result{Message: MsgFetchFailed}
	}
	s.release = release
	s.TargetVersion = release.Tag

	if s.TargetVersion == s.CurrentVersion {
		o.enter(s, UpToDate)
		o.logger.Info(MsgUpToDate)
		return Result{Message: MsgUpToDate}
	}

	o.enter(s, UpdateAvailable)
	o.logger.Info(fmt.Sprintf("Update available: %s → %s", s.CurrentVersion, s.TargetVersion))
	o.warnUnusualTag(s)

	if !autoConfirm {
		o.enter(s, AwaitingConfirmation)
		if !o.confirm(ctx) {
			o.enter(s, Cancelled)
			o.logger.Warn(MsgCancelled)
			return Result{Message: MsgCancelled}
		}
	}

	return o.apply(ctx, s)
}

// apply performs the mutating part of a session. Failures before the backup
// exists leave the installation untouched and end the session; failures
// after it trigger a rollback.
func (o *Orchestrator) apply(ctx context.Context, s *Session) Result {
	o.enter(s, Downloading)
	o.logger.Info(fmt.Sprintf("Downloading version %s...", s.TargetVersion))
	if err := o.download(ctx, s); err != nil {
		return o.abort(ctx, s, err)
	}

	o.enter(s, Verifying)
	tree, err := o.verify(ctx, s)
	if err != nil {
		return o.abort(ctx, s, err)
	}

	o.enter(s, BackingUp)
	if err := o.backup(ctx, s); err != nil {
		return o.abort(ctx, s, err)
	}
	if err := ctx.Err(); err != nil {
		return o.rollback(s, newError(KindCancelled, "backing up", err))
	}

	o.enter(s, Installing)
	o.logger.Info("Applying update...")
	if err := o.installer.StageAndSwap(ctx, tree); err != nil {
		return o.rollback(s, err)
	}
	if err := o.store.WriteVersion(s.TargetVersion); err != nil {
		return o.rollback(s, newError(KindConfig, "saving version", err))
	}

	o.enter(s, Success)
	o.logger.Info(MsgSuccess)
	return Result{Succeeded: true, Message: MsgSuccess}
}

func (o *Orchestrator) download(ctx context.Context, s *Session) error {
	if s.release.ArchiveURL == "" {
		return newError(KindNetwork, "downloading release", errors.New("release has no archive URL"))
	}

	if err := os.RemoveAll(s.TempDir); err != nil {
		return newError(KindFilesystem, "clearing temp directory", err)
	}
	if err := os.MkdirAll(s.TempDir, 0755); err != nil {
		return newError(KindFilesystem, "creating temp directory", err)
	}

	f, err := os.Create(s.archivePath())
	if err != nil {
		return newError(KindFilesystem, "creating archive file", err)
	}

	n, fetchErr := o.fetcher.Fetch(ctx, s.release.ArchiveURL, f, o.progress)
	closeErr := f.Close()
	switch {
	case fetchErr != nil && ctx.Err() != nil:
		return newError(KindCancelled, "downloading release", ctx.Err())
	case fetchErr != nil:
		return fetchErr
	case closeErr != nil:
		return newError(KindFilesystem, "writing archive", closeErr)
	}

	o.logger.Debug("Downloaded release archive", "bytes", n, "path", s.archivePath())
	return nil
}

// verify extracts the archive and checks its structure and checksum,
// returning the root of the extracted release tree.
func (o *Orchestrator) verify(ctx context.Context, s *Session) (string, error) {
	o.logger.Info("Extracting update package...")
	tree, err := ExtractZip(s.archivePath(), s.extractDir())
	if err != nil {
		return "", newError(KindFilesystem, "extracting archive", err)
	}

	if err := ValidateStructure(tree, o.required); err != nil {
		return "", newError(KindStructure, "validating release", err)
	}

	if err := o.verifyChecksum(ctx, s); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", newError(KindCancelled, "verifying release", err)
	}
	return tree, nil
}

func (o *Orchestrator) verifyChecksum(ctx context.Context, s *Session) error {
	asset := s.release.ChecksumAsset()
	if asset == nil {
		o.logger.Info("No checksum published for this release, skipping verification")
		return nil
	}

	body, err := o.source.FetchText(ctx, asset.URL)
	if err != nil {
		return err
	}

	digest, err := ParseDigest(body)
	if err != nil {
		return newError(KindIntegrity, "reading "+asset.Name, err)
	}

	if err := VerifyFile(s.archivePath(), digest); err != nil {
		return newError(KindIntegrity, "verifying archive", err)
	}

	o.logger.Info("Checksum verified", "sha256", digest)
	return nil
}

// backup snapshots the installation and prunes old snapshots. It ignores
// cancellation so that a rollback target always exists once it returns.
func (o *Orchestrator) backup(ctx context.Context, s *Session) error {
	rec, err := o.backups.Create(context.WithoutCancel(ctx), o.root)
	if err != nil {
		return newError(KindFilesystem, "creating backup", err)
	}
	s.BackupPath = rec.Path
	o.logger.Info("Backup created", "path", rec.Path)

	pruned, err := o.backups.Prune(o.maxBackups)
	if err != nil {
		o.logger.Warn("Failed to prune old backups", "err", err)
		return nil
	}
	for _, r := range pruned.Deleted {
		o.logger.Debug("Pruned backup", "name", r.Name)
	}
	return nil
}

// confirm asks the user whether to proceed. Cancelling ctx while the prompt
// is open counts as a refusal.
func (o *Orchestrator) confirm(ctx context.Context) bool {
	if o.confirmer == nil {
		o.logger.Warn("Update requires confirmation but no prompt is available")
		return false
	}

	answer := make(chan bool, 1)
	go func() {
		ok, err := o.confirmer.Confirm(ctx, confirmQuestion)
		if err != nil {
			o.logger.Warn("Confirmation failed", "err", err)
		}
		answer <- ok && err == nil
	}()

	select {
	case <-ctx.Done():
		return false
	case ok := <-answer:
		return ok
	}
}

// abort ends a session whose failure happened before any mutation.
func (o *Orchestrator) abort(ctx context.Context, s *Session, err error) Result {
	if (ctx.Err() != nil || errors.Is(err, ErrCancelled)) && s.State.CanTransition(Cancelled) {
		o.enter(s, Cancelled)
		o.logger.Warn(MsgCancelled)
		return Result{Message: MsgCancelled}
	}

	o.enter(s, Failed)
	o.logger.Error("Update failed", "kind", KindOf(err), "err", err)
	return Result{Message: "Update failed: " + err.Error()}
}

// rollback ends a session whose failure happened after the backup.
func (o *Orchestrator) rollback(s *Session, cause error) Result {
	o.enter(s, Failed)
	o.logger.Error("Update failed, initiating rollback", "kind", KindOf(cause), "err", cause)
	return o.restore(s)
}

// restore runs on a fresh context so an interrupt cannot abort it.
func (o *Orchestrator) restore(s *Session) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.State = RollbackFailed
			res = o.rollbackFailed(fmt.Errorf("%v", r))
		}
	}()

	o.enter(s, RollingBack)
	o.logger.Warn("Initiating rollback...")

	if s.BackupPath == "" {
		o.enter(s, RollbackFailed)
		return o.rollbackFailed(backup.ErrNoBackup)
	}

	if err := o.backups.Restore(context.Background(), s.BackupPath); err != nil {
		o.enter(s, RollbackFailed)
		return o.rollbackFailed(err)
	}

	o.enter(s, RolledBack)
	o.logger.Info("Rollback completed successfully", "backup", s.BackupPath)
	return Result{Message: MsgRolledBack}
}

func (o *Orchestrator) rollbackFailed(err error) Result {
	o.logger.Error("Rollback failed, installation may be inconsistent", "err", err, "fatal", true)
	return Result{Message: "Update failed and rollback failed: " + err.Error()}
}

// recoverPanic turns a panic inside a session into a terminal result,
// restoring the backup when one was taken.
func (o *Orchestrator) recoverPanic(s *Session, r any) Result {
	err := fmt.Errorf("critical error during %s: %v", s.State, r)
	o.logger.Error("Update aborted", "err", err)

	switch {
	case s.State == RollingBack:
		s.State = RollbackFailed
		return o.rollbackFailed(err)
	case s.BackupPath != "" && (s.State == Failed || !s.State.Terminal()):
		s.State = Failed
		return o.restore(s)
	default:
		s.State = Failed
		return Result{Message: "Update failed: " + err.Error()}
	}
}

// enter moves s to next, panicking on a transition the state table forbids.
func (o *Orchestrator) enter(s *Session, next State) {
	if !s.State.CanTransition(next) {
		panic(fmt.Sprintf("invalid update transition %s -> %s", s.State, next))
	}
	o.logger.Debug("Update state", "from", s.State, "to", next)
	s.State = next
}

// warnUnusualTag logs when the published tag is not a plain upgrade.
func (o *Orchestrator) warnUnusualTag(s *Session) {
	direction, err := CompareTags(s.CurrentVersion, s.TargetVersion)
	switch {
	case err != nil:
		o.logger.Warn("Cannot order versions, proceeding on tag mismatch", "err", err)
	case direction == DirectionDowngrade:
		o.logger.Warn("Published release is older than the installed version",
			"installed", s.CurrentVersion, "published", s.TargetVersion)
	case direction == DirectionSame:
		o.logger.Warn("Tags differ only in formatting",
			"installed", s.CurrentVersion, "published", s.TargetVersion)
	}
}
