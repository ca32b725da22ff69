package objbridge

type ErrNotSyncable struct{}

func (ErrNotSyncable) Error() string {
	return "the configured submitter does not support sync barriers"
}
