package processor

import "github.com/iokaravas/ksDiscordBot/internal/models"

// Diff compares a fresh snapshot with the previously published one. Only
// pledged and backers count as a change; comments are informational. A
// zero previous snapshot is a baseline, never a change.
func Diff(previous, current models.Snapshot) (changed bool, delta models.Snapshot) {
	if previous.IsZero() {
		return false, models.Snapshot{}
	}
	changed = current.Pledged != previous.Pledged ||
		current.BackersCount != previous.BackersCount
	return changed, current.Sub(previous)
}
