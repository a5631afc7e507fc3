package records

import (
	"fmt"
	"unicode/utf8"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// Instruction names understood by the social program.
const (
	InstructionCreateProfile = "create_profile"
	InstructionCreatePost    = "create_post"
	InstructionCreateFollow  = "create_follow"
)

// Account sizing limits enforced by the social program.
const (
	MaxUsernameLen = 32
	MaxPostLen     = 280
)

var instructionNames = []string{InstructionCreateProfile, InstructionCreatePost, InstructionCreateFollow}

// CreateProfile builds the instruction creating owner's profile.
func CreateProfile(d ledger.Deriver, owner ledger.Identity, username string) (ledger.Instruction, error) {
	if err := ValidateUsername(username); err != nil {
		return ledger.Instruction{}, err
	}
	w := newWriter(Discriminator("global", InstructionCreateProfile))
	w.string(username)
	return ledger.Instruction{
		Program: d.Program,
		Name:    InstructionCreateProfile,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(d.Profile(owner)),
			ledger.Signer(owner),
			ledger.ReadOnly(ledger.SystemProgram),
		},
		Data: w.bytes(),
	}, nil
}

// CreatePost builds the instruction appending a post at index.
func CreatePost(d ledger.Deriver, owner ledger.Identity, index uint64, text string) (ledger.Instruction, error) {
	if err := ValidatePostText(text); err != nil {
		return ledger.Instruction{}, err
	}
	w := newWriter(Discriminator("global", InstructionCreatePost))
	w.string(text)
	return ledger.Instruction{
		Program: d.Program,
		Name:    InstructionCreatePost,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(d.Profile(owner)),
			ledger.Writable(d.Post(owner, index)),
			ledger.Signer(owner),
			ledger.ReadOnly(ledger.SystemProgram),
			ledger.ReadOnly(ledger.ClockSysvar),
		},
		Data: w.bytes(),
	}, nil
}

// CreateFollow builds the instruction appending a follow edge to target at index.
func CreateFollow(d ledger.Deriver, owner ledger.Identity, index uint64, target ledger.Identity) ledger.Instruction {
	w := newWriter(Discriminator("global", InstructionCreateFollow))
	return ledger.Instruction{
		Program: d.Program,
		Name:    InstructionCreateFollow,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(d.Profile(owner)),
			ledger.Writable(d.Follow(owner, index)),
			ledger.Signer(owner),
			ledger.ReadOnly(target),
			ledger.ReadOnly(ledger.SystemProgram),
		},
		Data: w.bytes(),
	}
}

// DecodedInstruction is the parsed form of instruction data.
type DecodedInstruction struct {
	Name string
	Text string // username for create_profile, text for create_post
}

// DecodeInstruction parses instruction data produced by the builders above.
func DecodeInstruction(data []byte) (DecodedInstruction, error) {
	for _, name := range instructionNames {
		r, err := newReader(data, Discriminator("global", name), name)
		if err != nil {
			continue
		}
		out := DecodedInstruction{Name: name}
		if name != InstructionCreateFollow {
			out.Text = r.string("arg0")
		}
		return out, r.err
	}
	return DecodedInstruction{}, errors.Decode("unknown instruction discriminator", nil)
}

// ValidateUsername checks username against the profile account limits.
func ValidateUsername(username string) error {
	return validateText("username", username, MaxUsernameLen)
}

// ValidatePostText checks text against the post account limits.
func ValidatePostText(text string) error {
	return validateText("text", text, MaxPostLen)
}

func validateText(field, s string, max int) error {
	if !utf8.ValidString(s) {
		return errors.Precondition(fmt.Sprintf("%s must be valid UTF-8", field))
	}
	if len(s) > max {
		return errors.Precondition(fmt.Sprintf("%s exceeds %d bytes", field, max))
	}
	return nil
}
