package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"lendus/internal/application/models"
	docmodels "lendus/internal/documents/models"
	vcmodels "lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
)

// RecordReader lists the current versions an owner holds.
type RecordReader interface {
	ListCurrent(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*vcmodels.VersionedRecord, error)
}

// DocumentReader lists the active documents an owner holds.
type DocumentReader interface {
	ListActive(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*docmodels.Document, error)
}

// Candidate record types per required slot, in order of preference.
var (
	identificationTypes = []vcmodels.RecordType{vcmodels.TypeINE, vcmodels.TypePassport}
	addressTypes        = []vcmodels.RecordType{vcmodels.TypeHome}
	employmentTypes     = []vcmodels.RecordType{vcmodels.TypeSalaried, vcmodels.TypeSelfEmployed, vcmodels.TypeBusinessOwner}
)

type recordData struct {
	RecordType string          `json:"record_type"`
	Slot       string          `json:"slot,omitempty"`
	Status     string          `json:"status"`
	ValidFrom  time.Time       `json:"valid_from"`
	Payload    json.RawMessage `json:"payload"`
}

type documentData struct {
	DocType   string         `json:"doc_type"`
	Status    string         `json:"status"`
	ValidFrom time.Time      `json:"valid_from"`
	File      docmodels.File `json:"file"`
}

// snapshotBuilder reads every slot once so ids and payload copies come from
// the same reads.
type snapshotBuilder struct {
	snapshot *models.Snapshot
	missing  []string
}

func (b *snapshotBuilder) addRecord(key string, rec *vcmodels.VersionedRecord) error {
	payload, err := vcmodels.EncodePayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", key, err)
	}
	data, err := json.Marshal(recordData{
		RecordType: string(rec.Type),
		Slot:       rec.Slot,
		Status:     string(rec.Status),
		ValidFrom:  rec.ValidFrom,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b.snapshot.References[key] = models.Reference{Kind: models.RefVersionRecord, ID: uuid.UUID(rec.ID), Type: string(rec.Type)}
	b.snapshot.Data[key] = data
	return nil
}

func (b *snapshotBuilder) addDocument(key string, doc *docmodels.Document) error {
	data, err := json.Marshal(documentData{
		DocType:   string(doc.DocType),
		Status:    string(doc.Status),
		ValidFrom: doc.ValidFrom,
		File:      doc.File,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	b.snapshot.References[key] = models.Reference{Kind: models.RefDocument, ID: uuid.UUID(doc.ID), Type: string(doc.DocType)}
	b.snapshot.Data[key] = data
	return nil
}

// buildSnapshot fills every required slot from the current records and active
// documents of the applicant. Any missing slot fails the whole capture with
// an IncompleteProfileError listing all of them.
func (s *Service) buildSnapshot(ctx context.Context, app *models.Application, now time.Time) (*models.Snapshot, error) {
	records, err := s.records.ListCurrent(ctx, app.Tenant, app.Applicant)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListActive(ctx, app.Tenant, app.Applicant)
	if err != nil {
		return nil, err
	}

	current := make(map[vcmodels.RecordType]*vcmodels.VersionedRecord, len(records))
	var references []*vcmodels.VersionedRecord
	for _, rec := range records {
		if rec.Type.MultiValued() {
			references = append(references, rec)
			continue
		}
		current[rec.Type] = rec
	}
	sort.Slice(references, func(i, j int) bool {
		a, b := references[i], references[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Slot < b.Slot
	})
	active := make(map[docmodels.DocType]*docmodels.Document, len(docs))
	for _, doc := range docs {
		active[doc.DocType] = doc
	}

	b := &snapshotBuilder{snapshot: &models.Snapshot{
		References: make(map[string]models.Reference),
		Data:       make(map[string]json.RawMessage),
		CapturedAt: now,
	}}

	required := []struct {
		slot  string
		types []vcmodels.RecordType
	}{
		{models.SlotIdentification, identificationTypes},
		{models.SlotAddress, addressTypes},
		{models.SlotEmployment, employmentTypes},
	}
	for _, r := range required {
		rec := firstCurrent(current, r.types)
		if rec == nil {
			b.missing = append(b.missing, r.slot)
			continue
		}
		if err := b.addRecord(r.slot, rec); err != nil {
			return nil, err
		}
	}

	if bank, ok := active[docmodels.DocBankStatement]; ok {
		if err := b.addDocument(models.SlotBankAccount, bank); err != nil {
			return nil, err
		}
	} else {
		b.missing = append(b.missing, models.SlotBankAccount)
	}

	if len(references) < s.minReferences {
		b.missing = append(b.missing, fmt.Sprintf("%s (%d of %d)", models.SlotReferences, len(references), s.minReferences))
	} else {
		for i, rec := range references {
			if err := b.addRecord(fmt.Sprintf("%s.%d", models.SlotReferences, i), rec); err != nil {
				return nil, err
			}
		}
	}

	if len(b.missing) > 0 {
		return nil, models.NewIncompleteProfile(b.missing)
	}

	for _, doc := range docs {
		if doc.DocType == docmodels.DocBankStatement {
			continue
		}
		if err := b.addDocument(models.SlotDocuments+"."+string(doc.DocType), doc); err != nil {
			return nil, err
		}
	}
	return b.snapshot, nil
}

func firstCurrent(current map[vcmodels.RecordType]*vcmodels.VersionedRecord, types []vcmodels.RecordType) *vcmodels.VersionedRecord {
	for _, t := range types {
		if rec, ok := current[t]; ok {
			return rec
		}
	}
	return nil
}
