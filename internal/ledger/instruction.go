package ledger

// Well-known runtime accounts referenced by the social program's instructions.
var (
	SystemProgram = MustParseIdentity("11111111111111111111111111111111")
	ClockSysvar   = MustParseIdentity("SysvarC1ock11111111111111111111111111111111")
)

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	Key        Identity `json:"key"`
	IsSigner   bool     `json:"is_signer"`
	IsWritable bool     `json:"is_writable"`
}

// Instruction is a state-changing request addressed to a program.
type Instruction struct {
	Program  Identity      `json:"program"`
	Name     string        `json:"name"`
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data"`
}

// Writable marks an address as a writable, non-signing account.
func Writable(a Address) AccountMeta {
	return AccountMeta{Key: Identity(a), IsWritable: true}
}

// Signer marks an identity as the signing, fee-paying authority.
func Signer(id Identity) AccountMeta {
	return AccountMeta{Key: id, IsSigner: true, IsWritable: true}
}

// ReadOnly marks an identity as a read-only account.
func ReadOnly(id Identity) AccountMeta {
	return AccountMeta{Key: id}
}
