// Package retention prunes the evidence archive by age and by record count.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays:       90,
//	    PruneSchedule:       "0 3 * * *",
//	    ArchiveBeforeDelete: true,
//	    ArchivePath:         "data/archives/",
//	})
//
//	scheduler := retention.NewScheduler(pruner)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
//
// Prune can also be called directly, as `governor evidence prune` does.
//
// # Archiving
//
// With ArchiveBeforeDelete, the records about to be deleted are streamed to
// ArchivePath as a JSON array named evidence-<age|count>-<UTC time>.json.
//
// # Scheduling
//
// PruneSchedule takes standard five-field cron expressions and the
// robfig/cron descriptors ("@daily", "@every 1h"). An empty schedule
// disables the scheduler; Start then returns without error.
package retention
