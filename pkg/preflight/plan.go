package preflight

// Plan selects the checks Run performs.
type Plan struct {
	SourceAccessible bool
	TargetAccessible bool
	TargetWritable   bool
	PathNesting      bool
	// FreeSpace warns when the target volume has less than MinFreeSpaceMB free.
	FreeSpace      bool
	MinFreeSpaceMB int
}

// BackupPlan returns the checks that guard a backup run.
func BackupPlan(minFreeSpaceMB int) Plan {
	return Plan{
		SourceAccessible: true,
		TargetAccessible: true,
		TargetWritable:   true,
		PathNesting:      true,
		FreeSpace:        minFreeSpaceMB > 0,
		MinFreeSpaceMB:   minFreeSpaceMB,
	}
}
