package vm

const (
	// accountStorageOverhead is charged on top of the data length.
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionYears         = 2
)

// MinimumBalance returns the lamports an account of size bytes must hold
// to be rent exempt.
func MinimumBalance(size int) uint64 {
	return uint64(accountStorageOverhead+size) * lamportsPerByteYear * exemptionYears
}
