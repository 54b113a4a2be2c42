package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/store"
)

// openStore opens (and migrates, if needed) the database for the user
// named by the global flags, returning the manager pair. The caller must
// close the UserDataManager.
func openStore(ctx context.Context, opts *RootOptions) (*store.UserDataManager, *store.TransactionManager, error) {
	fl := flags.Default()
	if opts.FlagsFile != "" {
		if err := fl.LoadFile(opts.FlagsFile); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "loading flag file", err)
		}
	}

	udm := store.NewUserDataManager(opts.DataDir, fl, store.SystemClock{}, slog.Default())
	tm, err := udm.ForUser(ctx, opts.User)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening user database", err)
	}
	return udm, tm, nil
}

// reportStoreError renders a store error through the formatter and maps
// it to an exit code. Non-store errors pass through unchanged.
func reportStoreError(f *OutputFormatter, err error) error {
	var se *store.StoreError
	if !errors.As(err, &se) {
		return err
	}
	f.Error(string(se.Code), se.Error())
	return WrapExitError(ExitFailure, string(se.Code), err)
}

// parseTime parses an RFC 3339 timestamp flag, returning the zero time
// for an empty value.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, "invalid timestamp (want RFC 3339)", err)
	}
	return t, nil
}
