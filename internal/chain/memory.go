package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// MemoryLedger is an in-process ledger that runs the social program's
// instructions with the same address and counter checks as the network.
type MemoryLedger struct {
	mu       sync.RWMutex
	deriver  ledger.Deriver
	accounts map[ledger.Address][]byte
	slot     uint64
	dropNext int

	// Clock assigns post timestamps and block times.
	Clock func() time.Time
	// OnSubmit, when set, runs before each instruction executes.
	OnSubmit func(ix ledger.Instruction)

	log *logger.Logger
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger hosting the social program.
func NewMemoryLedger(program ledger.Identity, log *logger.Logger) *MemoryLedger {
	if log == nil {
		log = logger.NewDefault("memory-ledger")
	}
	return &MemoryLedger{
		deriver:  ledger.NewDeriver(program),
		accounts: make(map[ledger.Address][]byte),
		Clock:    time.Now,
		log:      log,
	}
}

// Fetch returns the account at addr.
func (m *MemoryLedger) Fetch(ctx context.Context, addr ledger.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.accounts[addr]
	if !ok {
		return nil, errors.NotFound("no account at " + addr.String())
	}
	return append([]byte(nil), data...), nil
}

// FetchBatch returns the accounts at addrs in order.
func (m *MemoryLedger) FetchBatch(ctx context.Context, addrs []ledger.Address) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		if data, ok := m.accounts[a]; ok {
			out[i] = append([]byte(nil), data...)
		}
	}
	return out, nil
}

// Put stores raw bytes at addr, bypassing the program.
func (m *MemoryLedger) Put(addr ledger.Address, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = append([]byte(nil), data...)
}

// Delete removes the account at addr.
func (m *MemoryLedger) Delete(addr ledger.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, addr)
}

// DropNextRecordWrites makes the next n post or follow creations bump the
// owner's counter without storing the record, leaving a gap readers must skip.
func (m *MemoryLedger) DropNextRecordWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropNext = n
}

// Submit executes ix as signer.
func (m *MemoryLedger) Submit(ctx context.Context, ix ledger.Instruction, signer ledger.Identity) (*Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.OnSubmit != nil {
		m.OnSubmit(ix)
	}
	if ix.Program != m.deriver.Program {
		return nil, errors.Submission("unknown program "+ix.Program.String(), nil)
	}

	decoded, err := records.DecodeInstruction(ix.Data)
	if err != nil {
		return nil, errors.Submission("invalid instruction data", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	switch decoded.Name {
	case records.InstructionCreateProfile:
		err = m.createProfile(ix, signer, decoded.Text)
	case records.InstructionCreatePost:
		err = m.createPost(ix, signer, decoded.Text, now.Unix())
	case records.InstructionCreateFollow:
		err = m.createFollow(ix, signer)
	}
	if err != nil {
		return nil, err
	}

	m.slot++
	return &Confirmation{
		Signature: fmt.Sprintf("mem-%d", m.slot),
		Slot:      m.slot,
		BlockTime: now.Unix(),
	}, nil
}

func (m *MemoryLedger) checkSigner(ix ledger.Instruction, signer ledger.Identity, pos int) error {
	if len(ix.Accounts) <= pos || ix.Accounts[pos].Key != signer || !ix.Accounts[pos].IsSigner {
		return errors.Submission("missing required signature for "+signer.String(), nil)
	}
	return nil
}

func (m *MemoryLedger) checkAccount(ix ledger.Instruction, pos int, want ledger.Address, what string) error {
	if len(ix.Accounts) <= pos || ledger.Address(ix.Accounts[pos].Key) != want {
		return errors.Submission(fmt.Sprintf("seeds constraint violated for %s account", what), nil)
	}
	return nil
}

func (m *MemoryLedger) loadProfile(owner ledger.Identity) (ledger.Address, records.Profile, error) {
	addr := m.deriver.Profile(owner)
	data, ok := m.accounts[addr]
	if !ok {
		return addr, records.Profile{}, errors.Submission("profile account not initialized", nil)
	}
	p, err := records.DecodeProfile(data)
	if err != nil {
		return addr, p, errors.Submission("profile account corrupt", err)
	}
	return addr, p, nil
}

func (m *MemoryLedger) occupied(addr ledger.Address) error {
	if _, ok := m.accounts[addr]; ok {
		return errors.AlreadyExists(fmt.Sprintf("account %s already in use", addr), nil)
	}
	return nil
}

func (m *MemoryLedger) createProfile(ix ledger.Instruction, signer ledger.Identity, username string) error {
	if err := m.checkSigner(ix, signer, 1); err != nil {
		return err
	}
	addr := m.deriver.Profile(signer)
	if err := m.checkAccount(ix, 0, addr, "profile"); err != nil {
		return err
	}
	if err := m.occupied(addr); err != nil {
		return err
	}
	m.accounts[addr] = records.EncodeProfile(records.Profile{Username: username})
	m.log.WithField("owner", signer.String()).Debug("profile created")
	return nil
}

func (m *MemoryLedger) createPost(ix ledger.Instruction, signer ledger.Identity, text string, ts int64) error {
	if err := m.checkSigner(ix, signer, 2); err != nil {
		return err
	}
	profileAddr, profile, err := m.loadProfile(signer)
	if err != nil {
		return err
	}
	if err := m.checkAccount(ix, 0, profileAddr, "profile"); err != nil {
		return err
	}
	postAddr := m.deriver.Post(signer, profile.PostCount)
	if err := m.checkAccount(ix, 1, postAddr, "post"); err != nil {
		return err
	}
	if err := m.occupied(postAddr); err != nil {
		return err
	}

	if m.dropNext > 0 {
		m.dropNext--
	} else {
		m.accounts[postAddr] = records.EncodePost(records.Post{Text: text, Timestamp: ts})
	}
	profile.PostCount++
	m.accounts[profileAddr] = records.EncodeProfile(profile)
	return nil
}

func (m *MemoryLedger) createFollow(ix ledger.Instruction, signer ledger.Identity) error {
	if err := m.checkSigner(ix, signer, 2); err != nil {
		return err
	}
	profileAddr, profile, err := m.loadProfile(signer)
	if err != nil {
		return err
	}
	if err := m.checkAccount(ix, 0, profileAddr, "profile"); err != nil {
		return err
	}
	followAddr := m.deriver.Follow(signer, profile.FollowCount)
	if err := m.checkAccount(ix, 1, followAddr, "follow"); err != nil {
		return err
	}
	if err := m.occupied(followAddr); err != nil {
		return err
	}
	if len(ix.Accounts) < 4 {
		return errors.Submission("follow target account missing", nil)
	}

	if m.dropNext > 0 {
		m.dropNext--
	} else {
		m.accounts[followAddr] = records.EncodeFollowEdge(records.FollowEdge{Target: ix.Accounts[3].Key})
	}
	profile.FollowCount++
	m.accounts[profileAddr] = records.EncodeProfile(profile)
	return nil
}
