package fair

import (
	"fmt"
	"sync"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

// SeedStore persists the server seed and the nonce counter.
type SeedStore interface {
	ServerSeed() (string, error)
	Rotate() (string, error)
	Nonce() (uint64, error)
	SaveNonce(n uint64) error
}

// Receipt identifies the inputs of one fair draw.
type Receipt struct {
	Matrix         matrix.Type `json:"matrix"`
	ClientSeed     string      `json:"clientSeed"`
	Nonce          uint64      `json:"nonce"`
	ServerSeedHash string      `json:"serverSeedHash"`
}

// Rotation is returned when the server seed is replaced.
type Rotation struct {
	PreviousSeed   string `json:"previousSeed"`
	PreviousHash   string `json:"previousHash"`
	LastNonce      uint64 `json:"lastNonce"`
	NextCommitment string `json:"nextCommitment"`
}

// Dealer is a draw.Sampler that gives every draw its own nonce.
type Dealer struct {
	mu         sync.Mutex
	store      SeedStore
	clientSeed string
	serverSeed string
	nonce      uint64
	last       *Receipt
}

func NewDealer(store SeedStore, clientSeed string) (*Dealer, error) {
	if clientSeed == "" {
		clientSeed = "lotto-desk"
	}
	seed, err := store.ServerSeed()
	if err != nil {
		return nil, err
	}
	nonce, err := store.Nonce()
	if err != nil {
		return nil, err
	}
	return &Dealer{
		store:      store,
		clientSeed: clientSeed,
		serverSeed: seed,
		nonce:      nonce,
	}, nil
}

// String renders the receipt for analysis text.
func (r Receipt) String() string {
	return fmt.Sprintf("nonce %d, server seed hash %s", r.Nonce, r.ServerSeedHash)
}

// Sample draws with the next nonce and records a receipt.
func (d *Dealer) Sample(cfg matrix.Config) (draw.Draw, error) {
	out, _, err := d.SampleReceipt(cfg)
	return out, err
}

// SampleReceipt draws with the next nonce and returns the receipt for that
// draw. Prefer it over LastReceipt when other draws may run concurrently.
func (d *Dealer) SampleReceipt(cfg matrix.Config) (draw.Draw, Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.nonce + 1
	out, err := draw.Sample(cfg, NewSource(d.serverSeed, d.clientSeed, next))
	if err != nil {
		return draw.Draw{}, Receipt{}, err
	}
	if err := d.store.SaveNonce(next); err != nil {
		return draw.Draw{}, Receipt{}, fmt.Errorf("fair: persist nonce: %w", err)
	}
	d.nonce = next
	rc := Receipt{
		Matrix:         cfg.Type,
		ClientSeed:     d.clientSeed,
		Nonce:          next,
		ServerSeedHash: HashSeed(d.serverSeed),
	}
	d.last = &rc
	return out, rc, nil
}

// SampleWithProof implements draw.ProvenSampler. The proof is a Receipt.
func (d *Dealer) SampleWithProof(cfg matrix.Config) (draw.Draw, any, error) {
	out, rc, err := d.SampleReceipt(cfg)
	if err != nil {
		return draw.Draw{}, nil, err
	}
	return out, rc, nil
}

// LastReceipt returns the receipt of the latest draw, if any.
func (d *Dealer) LastReceipt() (Receipt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Receipt{}, false
	}
	return *d.last, true
}

// Commitment is the hash of the active server seed.
func (d *Dealer) Commitment() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return HashSeed(d.serverSeed)
}

func (d *Dealer) ClientSeed() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientSeed
}

func (d *Dealer) Nonce() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nonce
}

// Rotate reveals the active server seed and switches to a new one.
func (d *Dealer) Rotate() (Rotation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous, err := d.store.Rotate()
	if err != nil {
		return Rotation{}, err
	}
	next, err := d.store.ServerSeed()
	if err != nil {
		return Rotation{}, err
	}
	rot := Rotation{
		PreviousSeed:   previous,
		PreviousHash:   HashSeed(previous),
		LastNonce:      d.nonce,
		NextCommitment: HashSeed(next),
	}
	d.serverSeed = next
	d.nonce = 0
	d.last = nil
	return rot, nil
}

var _ draw.ProvenSampler = (*Dealer)(nil)

// Verify recomputes the draw for revealed inputs.
func Verify(serverSeed, clientSeed string, nonce uint64, cfg matrix.Config) (draw.Draw, error) {
	return draw.Sample(cfg, NewSource(serverSeed, clientSeed, nonce))
}
