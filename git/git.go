package git

import (
	"context"
	"errors"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/input-output-hk/catalyst-forge-release/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"
)

// Options configures repository discovery and performance.
type Options struct {
	// FS is the filesystem containing the working tree. Required.
	FS billy.Filesystem

	// Workdir is the worktree root within FS. Defaults to ".".
	Workdir string

	// StorerCacheSize sets the LRU objects cache entries.
	StorerCacheSize int
}

// Validate checks that the Options are usable.
func (o *Options) Validate() error {
	if o == nil || o.FS == nil {
		return WrapError(ErrInvalidOptions, "FS is required")
	}
	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidOptions, "StorerCacheSize cannot be negative")
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}
	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
}

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
}

// Repo is an opened repository with a worktree.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	options  Options
}

// Init creates a new repository in opts.FS. It is mainly useful for tests
// and scratch directories.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	storage, worktreeFS, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}
	return wrap(repo, opts)
}

// Open opens the existing repository whose worktree root is opts.Workdir.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	storage, worktreeFS, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(storage, worktreeFS)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, WrapErrorf(ErrNotRepository, "open %s", opts.Workdir)
		}
		return nil, WrapError(err, "failed to open repository")
	}
	return wrap(repo, opts)
}

func prepare(ctx context.Context, opts *Options) (*filesystem.Storage, billy.Filesystem, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, WrapError(err, "invalid options")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	opts.applyDefaults()

	scoped, err := opts.FS.Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, WrapErrorf(err, "failed to chroot to workdir %q", opts.Workdir)
	}
	dotGit, err := scoped.Chroot(git.GitDirName)
	if err != nil {
		return nil, nil, WrapError(err, "failed to access .git directory")
	}
	return fsbridge.NewStorage(dotGit, opts.StorerCacheSize), scoped, nil
}

func wrap(repo *git.Repository, opts *Options) (*Repo, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}
	return &Repo{repo: repo, worktree: worktree, options: *opts}, nil
}

// CurrentBranch returns the short name of the checked out branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Unborn branch: HEAD is symbolic but has no commit yet.
			ref, refErr := r.repo.Storer.Reference(plumbing.HEAD)
			if refErr == nil && ref.Type() == plumbing.SymbolicReference {
				return ref.Target().Short(), nil
			}
		}
		return "", WrapError(err, "failed to resolve HEAD")
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// Identity returns the author configured for the repository, falling back
// to the user's global git configuration.
func (r *Repo) Identity() (Signature, error) {
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		// Global config can be unreadable in sandboxes; use the local one.
		cfg, err = r.repo.Config()
		if err != nil {
			return Signature{}, WrapError(err, "failed to read git config")
		}
	}

	sig := Signature{Name: cfg.User.Name, Email: cfg.User.Email}
	if sig.Name == "" {
		sig.Name = cfg.Author.Name
	}
	if sig.Email == "" {
		sig.Email = cfg.Author.Email
	}
	if sig.Name == "" || sig.Email == "" {
		return Signature{}, ErrNoIdentity
	}
	return sig, nil
}
