package eventlog

// PruneSuperseded returns the messageCids that retention should drop for a
// single recordId given its writes in chronological order: every entry
// except the initial write and the latest write is superseded, spec §4.5
// ("keep the initial write and the latest state ... older writes' events
// are pruned when superseded").
func PruneSuperseded(chronological []string) []string {
	if len(chronological) <= 2 {
		return nil
	}
	return append([]string(nil), chronological[1:len(chronological)-1]...)
}
