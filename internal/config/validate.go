package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateGit(); err != nil {
		return err
	}
	if err := c.validateBuilds(); err != nil {
		return err
	}
	if err := c.validateGitHub(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.URL != "" {
		if err := validateHTTPURL(c.Database.URL); err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
	}
	if c.Database.TimeoutSeconds < 0 {
		return errors.New("database.timeout_seconds must be positive")
	}
	if c.Database.MaxRetries < 0 {
		return errors.New("database.max_retries cannot be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint != "" {
		if err := validateHTTPURL(c.Storage.Endpoint); err != nil {
			return fmt.Errorf("storage.endpoint: %w", err)
		}
	}
	if c.Storage.PublicURL != "" {
		if err := validateHTTPURL(c.Storage.PublicURL); err != nil {
			return fmt.Errorf("storage.public_url: %w", err)
		}
	}
	if c.Storage.MultipartThresholdMiB < 0 || c.Storage.PartSizeMiB < 0 {
		return errors.New("storage sizes cannot be negative")
	}
	return nil
}

func (c *Config) validateGit() error {
	if err := ValidateCommitMessage(c.Git.CommitMessage); err != nil {
		return fmt.Errorf("git.commit_message: %w", err)
	}
	if (c.Git.AuthorName == "") != (c.Git.AuthorEmail == "") {
		return errors.New("git.author_name and git.author_email must be set together")
	}
	if c.Git.FetchTimeoutSeconds < 0 || c.Git.PushTimeoutSeconds < 0 || c.Git.CommitTimeoutSeconds < 0 {
		return errors.New("git timeouts must be positive")
	}
	return nil
}

func (c *Config) validateBuilds() error {
	if !strings.Contains(c.Desktop.InstallerPattern, "{version}") {
		return errors.New("desktop.installer_pattern must contain {version}")
	}
	for name, tmpl := range map[string]string{
		"desktop.filename":   c.Desktop.Filename,
		"extension.filename": c.Extension.Filename,
	} {
		if strings.ContainsAny(tmpl, `/\`) {
			return fmt.Errorf("%s must be a plain file name", name)
		}
	}
	for _, pattern := range c.Extension.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("extension.exclude: invalid pattern %q: %w", pattern, err)
		}
	}
	if c.Desktop.BuildTimeoutSeconds < 0 {
		return errors.New("desktop.build_timeout_seconds must be positive")
	}
	if c.EAS.PollIntervalSeconds < 0 || c.EAS.TimeoutMinutes < 0 {
		return errors.New("eas poll settings must be positive")
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if err := validateHTTPURL(c.GitHub.APIURL); err != nil {
		return fmt.Errorf("github.api_url: %w", err)
	}
	if (c.GitHub.Owner == "") != (c.GitHub.Repo == "") {
		return errors.New("github.owner and github.repo must be set together")
	}
	if _, err := path.Match(c.GitHub.ArtifactPattern, ""); err != nil {
		return fmt.Errorf("github.artifact_pattern: %w", err)
	}
	if c.GitHub.PollIntervalSeconds < 0 || c.GitHub.TimeoutMinutes < 0 {
		return errors.New("github poll settings must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// ValidateCommitMessage checks msg against the Conventional Commits grammar.
func ValidateCommitMessage(msg string) error {
	machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
	if _, err := machine.Parse([]byte(msg)); err != nil {
		return fmt.Errorf("not a conventional commit: %w", err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
