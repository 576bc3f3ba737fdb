// Package indexer maintains secondary indexes over committed transactions
// so clients can list a game's participants and matches without scanning
// full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/storage"
)

const (
	prefixGames        = "idx:games:"
	prefixParticipants = "idx:participants:"
	prefixMatches      = "idx:matches:"
	prefixReceipt      = "idx:receipt:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	mu sync.Mutex
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventGameCreated, idx.onGameCreated)
	emitter.Subscribe(events.EventPlayerRegistered, idx.onPlayerRegistered)
	emitter.Subscribe(events.EventActionSubmitted, idx.onActionSubmitted)
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	return idx
}

// GamesByAuthority returns the game addresses created by authority.
func (idx *Indexer) GamesByAuthority(authority string) ([]string, error) {
	return idx.getList(prefixGames + authority)
}

// Participants returns the participant record addresses of game in
// registration order.
func (idx *Indexer) Participants(game string) ([]string, error) {
	return idx.getList(prefixParticipants + game)
}

// Matches returns the match record addresses opened in round of game.
func (idx *Indexer) Matches(game string, round uint8) ([]string, error) {
	return idx.getList(matchesKey(game, round))
}

// Receipt returns the receipt of a sequenced transaction.
func (idx *Indexer) Receipt(txID string) (*core.Receipt, error) {
	data, err := idx.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("indexer unmarshal receipt: %w", err)
	}
	return &r, nil
}

func matchesKey(game string, round uint8) string {
	return fmt.Sprintf("%s%s:%d", prefixMatches, game, round)
}

// ---- event handlers ----

func (idx *Indexer) onGameCreated(ev events.Event) {
	game, _ := ev.Data["game"].(string)
	authority, _ := ev.Data["authority"].(string)
	if game == "" || authority == "" {
		return
	}
	idx.add(prefixGames+authority, game)
}

func (idx *Indexer) onPlayerRegistered(ev events.Event) {
	game, _ := ev.Data["game"].(string)
	participant, _ := ev.Data["participant"].(string)
	if game == "" || participant == "" {
		return
	}
	idx.add(prefixParticipants+game, participant)
}

// The second submission to a match reports the same address again.
func (idx *Indexer) onActionSubmitted(ev events.Event) {
	game, _ := ev.Data["game"].(string)
	match, _ := ev.Data["match"].(string)
	round, ok := ev.Data["round"].(uint8)
	if game == "" || match == "" || !ok {
		return
	}
	idx.add(matchesKey(game, round), match)
}

func (idx *Indexer) onBlockCommit(ev events.Event) {
	receipts, _ := ev.Data["receipts"].([]*core.Receipt)
	if len(receipts) == 0 {
		return
	}
	batch := idx.db.NewBatch()
	for _, r := range receipts {
		data, err := json.Marshal(r)
		if err != nil {
			log.Errorf("encode receipt %s: %v", r.TxID, err)
			continue
		}
		batch.Set([]byte(prefixReceipt+r.TxID), data)
	}
	if err := batch.Write(); err != nil {
		log.Errorf("index receipts of block %d: %v", ev.BlockHeight, err)
	}
}

// ---- list helpers ----

func (idx *Indexer) add(key, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.addToList(key, value); err != nil {
		log.Errorf("index %s: %v", key, err)
	}
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
