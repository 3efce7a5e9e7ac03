// Package git sources signed policy documents from a Git repository.
//
// A Repository wraps a local checkout. A Syncer applies every *.json document
// under the configured path on start, then polls the branch and applies the
// documents each new commit touches:
//
//	repo, err := git.NewRepository(&cfg.Policies.Git)
//	if err != nil {
//		return err
//	}
//	if err := repo.Clone(ctx); err != nil {
//		return err
//	}
//	syncer := git.NewSyncer(repo, st, verifier, cfg.Policies.Git.Poll.Interval, logger)
//	if err := syncer.Start(ctx); err != nil {
//		return err
//	}
//
// Documents pass through the same admission path as every other source, so a
// commit cannot bypass signature checks. Authentication is by token (HTTPS),
// SSH key, or none for public and local repositories. A token of the form
// "env:NAME" is read from the environment at use.
package git
