package pseudonymizer

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/siherrmann/pseudonymizer/cipher"
	"github.com/siherrmann/pseudonymizer/core/batch"
	"github.com/siherrmann/pseudonymizer/core/engine"
	"github.com/siherrmann/pseudonymizer/core/mapper"
	"github.com/siherrmann/pseudonymizer/core/pipeline"
	"github.com/siherrmann/pseudonymizer/core/resolver"
	"github.com/siherrmann/pseudonymizer/database"
	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/library"
	"github.com/siherrmann/pseudonymizer/model"
)

// Pseudonymizer provides a unified interface to the encrypted store
// and the resolution, mapping and assignment components.
type Pseudonymizer struct {
	DB         *helper.Database
	Metadata   *database.MetadataDBHandler
	Identities *database.IdentitiesDBHandler
	Mappings   *database.MappingsDBHandler
	Detect     pipeline.DetectFunc // Optional mention detector

	library  *library.Library
	mapper   *mapper.Mapper
	resolver *resolver.Resolver
	engine   *engine.AssignmentEngine

	// mu enforces the single-writer discipline across calls; within
	// a batch the coordinator serializes writes on its own.
	mu  sync.Mutex
	log *slog.Logger
}

// NewPseudonymizer creates a new Pseudonymizer instance with all
// handlers initialized. The passphrase unlocks the encrypted store:
// on a fresh store the crypto parameters are generated and recorded,
// on an existing store the derived key is checked against the stored
// canary and a wrong passphrase fails before any data access.
func NewPseudonymizer(config *helper.DatabaseConfiguration, passphrase string) (*Pseudonymizer, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db, err := helper.NewDatabase("pseudonymizer", config, logger)
	if err != nil {
		return nil, helper.NewError("initialize database", err)
	}

	// Metadata first: it holds the crypto parameters all other
	// handlers depend on. force=false to not reload existing tables.
	metadata, err := database.NewMetadataDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create metadata handler", err)
	}

	codec, err := unlockStore(metadata, passphrase)
	if err != nil {
		return nil, err
	}

	identities, err := database.NewIdentitiesDBHandler(db, codec, false)
	if err != nil {
		return nil, helper.NewError("create identities handler", err)
	}

	mappings, err := database.NewMappingsDBHandler(db, codec, false)
	if err != nil {
		return nil, helper.NewError("create mappings handler", err)
	}

	lib, err := library.Default()
	if err != nil {
		return nil, helper.NewError("load pseudonym library", err)
	}

	p := &Pseudonymizer{
		DB:         db,
		Metadata:   metadata,
		Identities: identities,
		Mappings:   mappings,
		library:    lib,
		resolver:   resolver.NewResolver(logger),
		log:        logger,
	}
	err = p.rebuild()
	if err != nil {
		return nil, err
	}

	return p, nil
}

// unlockStore derives the encryption key from the passphrase and the
// stored (or freshly generated) salt, and verifies it against the
// canary value.
func unlockStore(metadata *database.MetadataDBHandler, passphrase string) (*cipher.Codec, error) {
	hasSalt, err := metadata.HasValue(database.MetaSalt)
	if err != nil {
		return nil, helper.NewError("read store metadata", err)
	}
	if !hasSalt {
		return initializeStore(metadata, passphrase)
	}

	saltHex, err := metadata.GetValue(database.MetaSalt)
	if err != nil {
		return nil, helper.NewError("read salt", err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, helper.NewError("decode salt", err)
	}
	iterationsValue, err := metadata.GetValue(database.MetaKDFIterations)
	if err != nil {
		return nil, helper.NewError("read kdf iterations", err)
	}
	iterations, err := strconv.Atoi(iterationsValue)
	if err != nil {
		return nil, helper.NewError("parse kdf iterations", err)
	}

	key, err := cipher.DeriveKey(passphrase, salt, iterations)
	if err != nil {
		return nil, helper.NewError("derive key", err)
	}
	codec, err := cipher.NewCodec(key)
	if err != nil {
		return nil, helper.NewError("create codec", err)
	}

	hasCanary, err := metadata.HasValue(database.MetaCanary)
	if err != nil {
		return nil, helper.NewError("read store metadata", err)
	}
	if !hasCanary {
		// A salt without a canary means initialization never finished;
		// adopting whatever passphrase comes next would silently split
		// the store, so refuse to open it.
		return nil, helper.NewError("verify store metadata", fmt.Errorf("%w: store has a salt but no canary", helper.ErrStoreUnavailable))
	}
	stored, err := metadata.GetValue(database.MetaCanary)
	if err != nil {
		return nil, helper.NewError("read canary", err)
	}
	err = codec.VerifyCanary(stored)
	if err != nil {
		return nil, err
	}

	return codec, nil
}

// initializeStore generates the crypto parameters for a fresh store.
// Salt, iteration count, schema version and canary are committed in a
// single transaction so a crash mid-initialization leaves no partial
// metadata behind.
func initializeStore(metadata *database.MetadataDBHandler, passphrase string) (*cipher.Codec, error) {
	salt, err := cipher.NewSalt()
	if err != nil {
		return nil, helper.NewError("generate salt", err)
	}
	iterations := cipher.DefaultKDFIterations

	key, err := cipher.DeriveKey(passphrase, salt, iterations)
	if err != nil {
		return nil, helper.NewError("derive key", err)
	}
	codec, err := cipher.NewCodec(key)
	if err != nil {
		return nil, helper.NewError("create codec", err)
	}
	canary, err := codec.Canary()
	if err != nil {
		return nil, helper.NewError("create canary", err)
	}

	err = metadata.SetValues(map[string]string{
		database.MetaSalt:          hex.EncodeToString(salt),
		database.MetaKDFIterations: strconv.Itoa(iterations),
		database.MetaSchemaVersion: database.SchemaVersion,
		database.MetaCanary:        canary,
	})
	if err != nil {
		return nil, err
	}

	return codec, nil
}

// rebuild wires mapper and engine from the current library. The
// mapper re-hydrates its used-sets from the store.
func (p *Pseudonymizer) rebuild() error {
	m, err := mapper.NewMapper(p.Mappings, p.library, p.log)
	if err != nil {
		return helper.NewError("create component mapper", err)
	}
	e, err := engine.NewAssignmentEngine(p.Identities, m, p.log)
	if err != nil {
		return helper.NewError("create assignment engine", err)
	}
	p.mapper = m
	p.engine = e
	return nil
}

// Close closes the database connection
func (p *Pseudonymizer) Close() error {
	if p.DB != nil && p.DB.Instance != nil {
		return p.DB.Instance.Close()
	}
	return nil
}

// SetDetector sets the mention detector used by ProcessDocument and
// ProcessBatch.
func (p *Pseudonymizer) SetDetector(detect pipeline.DetectFunc) {
	p.Detect = detect
}

// UseDefaultDetector sets up the default NER mention detector.
// This uses the distilbert-NER token classification model and
// downloads it on first use.
func (p *Pseudonymizer) UseDefaultDetector() error {
	detect, err := pipeline.DefaultDetector()
	if err != nil {
		return helper.NewError("create default detector", err)
	}
	p.Detect = detect
	return nil
}

// UseLibraryFile replaces the embedded pseudonym pools with a
// caller-supplied YAML file and rebuilds the mapper on top of it.
func (p *Pseudonymizer) UseLibraryFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lib, err := library.LoadFromFile(path)
	if err != nil {
		return err
	}
	p.library = lib
	return p.rebuild()
}

// ProcessDocument pseudonymizes one document:
// 1. Detecting mention spans with the configured detector
// 2. Resolving mentions into identity clusters
// 3. Assigning pseudonyms and persisting identities and mappings
// 4. Applying the replacement plan to the text
// Returns the pseudonymized text and the replacement plan.
func (p *Pseudonymizer) ProcessDocument(ctx context.Context, text string) (string, *model.ReplacementPlan, error) {
	if p.Detect == nil {
		return "", nil, helper.NewError("process document", fmt.Errorf("detector not set, use SetDetector() or UseDefaultDetector() first"))
	}
	if err := ctx.Err(); err != nil {
		return "", nil, helper.NewError("process document", err)
	}

	mentions, err := p.Detect(text)
	if err != nil {
		return "", nil, helper.NewError("detect mentions", err)
	}
	clusters, err := p.resolver.Resolve(text, mentions)
	if err != nil {
		return "", nil, helper.NewError("resolve mentions", err)
	}

	p.mu.Lock()
	plan, _, err := p.engine.Assign(clusters)
	p.mu.Unlock()
	if err != nil {
		return "", nil, err
	}

	output, err := pipeline.ApplyPlan(text, plan)
	if err != nil {
		return "", nil, err
	}
	return output, plan, nil
}

// ProcessBatch pseudonymizes the documents with a bounded worker pool
// for detection and resolution, while all writes stay serialized.
// Returns one plan per document, index-aligned with the input (nil
// for skipped documents), and an explicit batch summary.
func (p *Pseudonymizer) ProcessBatch(ctx context.Context, documents []string, workerCount int) ([]*model.ReplacementPlan, *model.BatchSummary, error) {
	if p.Detect == nil {
		return nil, nil, helper.NewError("process batch", fmt.Errorf("detector not set, use SetDetector() or UseDefaultDetector() first"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	coordinator, err := batch.NewCoordinator(p.Detect, p.resolver, p.engine, p.log)
	if err != nil {
		return nil, nil, err
	}
	return coordinator.Run(ctx, documents, workerCount)
}
