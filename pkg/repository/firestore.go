package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collConversations = "conversations"
	collTurns         = "turns"
	collSummaries     = "summaries"
	collNotes         = "notes"
	collProfiles      = "profiles"
)

// Firestore implements Repository using Cloud Firestore. Turns and summaries
// live in subcollections of their conversation document; the conversation
// document itself records which turn IDs belong to the active and archived
// tiers.
type Firestore struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

type convDoc struct {
	ID              string
	InterfaceType   string
	RoomID          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ActiveTurnIDs   []string
	ArchivedTurnIDs []string
	Metadata        map[string]any
}

type turnDoc struct {
	ID        string
	Timestamp time.Time
	Query     string
	Response  string
	UserID    string
	UserName  string
	Metadata  map[string]any
}

type summaryDoc struct {
	ID             string
	ConversationID string
	Content        string
	CreatedAt      time.Time
	CoveredTurnIDs []string
}

type noteDoc struct {
	ID        string
	Title     string
	Content   string
	Tags      []string
	Embedding firestore.Vector32
	CreatedAt time.Time
	UpdatedAt time.Time
}

func toConvDoc(conv *model.Conversation) *convDoc {
	doc := &convDoc{
		ID:            string(conv.ID),
		InterfaceType: string(conv.InterfaceType),
		RoomID:        conv.RoomID,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
		Metadata:      conv.Metadata,
	}
	for _, t := range conv.ActiveTurns {
		doc.ActiveTurnIDs = append(doc.ActiveTurnIDs, string(t.ID))
	}
	for _, t := range conv.ArchivedTurns {
		doc.ArchivedTurnIDs = append(doc.ArchivedTurnIDs, string(t.ID))
	}
	return doc
}

func (d *convDoc) toModel() *model.Conversation {
	return &model.Conversation{
		ID:            model.ConversationID(d.ID),
		InterfaceType: model.InterfaceType(d.InterfaceType),
		RoomID:        d.RoomID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Metadata:      d.Metadata,
	}
}

func toTurnDoc(t *model.Turn) *turnDoc {
	return &turnDoc{
		ID:        string(t.ID),
		Timestamp: t.Timestamp,
		Query:     t.Query,
		Response:  t.Response,
		UserID:    t.UserID,
		UserName:  t.UserName,
		Metadata:  t.Metadata,
	}
}

func (d *turnDoc) toModel() *model.Turn {
	return &model.Turn{
		ID:        model.TurnID(d.ID),
		Timestamp: d.Timestamp,
		Query:     d.Query,
		Response:  d.Response,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Metadata:  d.Metadata,
	}
}

func (r *Firestore) convRef(id model.ConversationID) *firestore.DocumentRef {
	return r.client.Collection(collConversations).Doc(string(id))
}

func (r *Firestore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if _, err := r.convRef(conv.ID).Set(ctx, toConvDoc(conv)); err != nil {
		return goerr.Wrap(err, "failed to create conversation", goerr.V("conversation_id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	snap, err := r.convRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}

	var doc convDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("conversation_id", id))
	}
	conv := doc.toModel()

	active, err := r.getTurnsByIDs(ctx, id, doc.ActiveTurnIDs)
	if err != nil {
		return nil, err
	}
	conv.ActiveTurns = active

	archived, err := r.getTurnsByIDs(ctx, id, doc.ArchivedTurnIDs)
	if err != nil {
		return nil, err
	}
	conv.ArchivedTurns = archived

	summaries, err := r.GetSummaries(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Summaries = summaries

	return conv, nil
}

func (r *Firestore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	if _, err := r.convRef(conv.ID).Set(ctx, toConvDoc(conv)); err != nil {
		return goerr.Wrap(err, "failed to update conversation", goerr.V("conversation_id", conv.ID))
	}
	return nil
}

func (r *Firestore) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	ref := r.convRef(id)

	for _, sub := range []string{collTurns, collSummaries} {
		iter := ref.Collection(sub).Documents(ctx)
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to iterate subcollection",
					goerr.V("conversation_id", id), goerr.V("subcollection", sub))
			}
			if _, err := snap.Ref.Delete(ctx); err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to delete subcollection document",
					goerr.V("conversation_id", id), goerr.V("subcollection", sub))
			}
		}
		iter.Stop()
	}

	if _, err := ref.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete conversation", goerr.V("conversation_id", id))
	}
	return nil
}

func (r *Firestore) FindConversations(ctx context.Context, criteria ConversationCriteria) ([]*model.Conversation, error) {
	q := r.client.Collection(collConversations).Query
	if criteria.RoomID != "" {
		q = q.Where("RoomID", "==", criteria.RoomID)
	}
	if criteria.InterfaceType != "" {
		q = q.Where("InterfaceType", "==", string(criteria.InterfaceType))
	}
	if !criteria.Since.IsZero() {
		q = q.Where("UpdatedAt", ">=", criteria.Since)
	}

	return r.queryConversations(ctx, q)
}

func (r *Firestore) GetRecentConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	q := r.client.Collection(collConversations).
		OrderBy("UpdatedAt", firestore.Desc).
		Limit(limit)
	return r.queryConversations(ctx, q)
}

// queryConversations returns conversation metadata only; tiers are assembled
// by GetConversation.
func (r *Firestore) queryConversations(ctx context.Context, q firestore.Query) ([]*model.Conversation, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var convs []*model.Conversation
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations")
		}
		var doc convDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation")
		}
		convs = append(convs, doc.toModel())
	}
	return convs, nil
}

func (r *Firestore) UpdateConversationMetadata(ctx context.Context, id model.ConversationID, metadata map[string]any) error {
	_, err := r.convRef(id).Update(ctx, []firestore.Update{
		{Path: "Metadata", Value: metadata},
		{Path: "UpdatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return goerr.Wrap(err, "failed to update conversation metadata", goerr.V("conversation_id", id))
	}
	return nil
}

func (r *Firestore) GetConversationMetadata(ctx context.Context, id model.ConversationID) (map[string]any, error) {
	conv, err := r.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv.Metadata, nil
}

func (r *Firestore) AddTurn(ctx context.Context, id model.ConversationID, turn *model.Turn) error {
	ref := r.convRef(id).Collection(collTurns).Doc(string(turn.ID))
	if _, err := ref.Set(ctx, toTurnDoc(turn)); err != nil {
		return goerr.Wrap(err, "failed to add turn",
			goerr.V("conversation_id", id), goerr.V("turn_id", turn.ID))
	}
	return nil
}

func (r *Firestore) GetTurns(ctx context.Context, id model.ConversationID, ids []model.TurnID) ([]*model.Turn, error) {
	if ids == nil {
		iter := r.convRef(id).Collection(collTurns).
			OrderBy("Timestamp", firestore.Asc).
			Documents(ctx)
		defer iter.Stop()

		var turns []*model.Turn
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, goerr.Wrap(err, "failed to iterate turns", goerr.V("conversation_id", id))
			}
			var doc turnDoc
			if err := snap.DataTo(&doc); err != nil {
				return nil, goerr.Wrap(err, "failed to decode turn", goerr.V("conversation_id", id))
			}
			turns = append(turns, doc.toModel())
		}
		return turns, nil
	}

	raw := make([]string, len(ids))
	for i, turnID := range ids {
		raw[i] = string(turnID)
	}
	return r.getTurnsByIDs(ctx, id, raw)
}

func (r *Firestore) getTurnsByIDs(ctx context.Context, id model.ConversationID, ids []string) ([]*model.Turn, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, len(ids))
	for i, turnID := range ids {
		refs[i] = r.convRef(id).Collection(collTurns).Doc(turnID)
	}

	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get turns", goerr.V("conversation_id", id))
	}

	turns := make([]*model.Turn, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode turn", goerr.V("conversation_id", id))
		}
		turns = append(turns, doc.toModel())
	}
	return turns, nil
}

func (r *Firestore) AddSummary(ctx context.Context, id model.ConversationID, summary *model.Summary) error {
	covered := make([]string, len(summary.CoveredTurnIDs))
	for i, turnID := range summary.CoveredTurnIDs {
		covered[i] = string(turnID)
	}
	doc := &summaryDoc{
		ID:             string(summary.ID),
		ConversationID: string(id),
		Content:        summary.Content,
		CreatedAt:      summary.CreatedAt,
		CoveredTurnIDs: covered,
	}

	ref := r.convRef(id).Collection(collSummaries).Doc(string(summary.ID))
	if _, err := ref.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add summary",
			goerr.V("conversation_id", id), goerr.V("summary_id", summary.ID))
	}
	return nil
}

func (r *Firestore) GetSummaries(ctx context.Context, id model.ConversationID) ([]*model.Summary, error) {
	iter := r.convRef(id).Collection(collSummaries).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var summaries []*model.Summary
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate summaries", goerr.V("conversation_id", id))
		}
		var doc summaryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode summary", goerr.V("conversation_id", id))
		}

		covered := make([]model.TurnID, len(doc.CoveredTurnIDs))
		for i, turnID := range doc.CoveredTurnIDs {
			covered[i] = model.TurnID(turnID)
		}
		summaries = append(summaries, &model.Summary{
			ID:             model.SummaryID(doc.ID),
			ConversationID: model.ConversationID(doc.ConversationID),
			Content:        doc.Content,
			CreatedAt:      doc.CreatedAt,
			CoveredTurnIDs: covered,
		})
	}
	return summaries, nil
}

func (r *Firestore) PutNote(ctx context.Context, note *model.Note) error {
	doc := &noteDoc{
		ID:        string(note.ID),
		Title:     note.Title,
		Content:   note.Content,
		Tags:      note.Tags,
		Embedding: note.Embedding,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
	if _, err := r.client.Collection(collNotes).Doc(string(note.ID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put note", goerr.V("note_id", note.ID))
	}
	return nil
}

func (r *Firestore) GetNote(ctx context.Context, id model.NoteID) (*model.Note, error) {
	snap, err := r.client.Collection(collNotes).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "note not found", goerr.V("note_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("note_id", id))
	}
	return decodeNote(snap)
}

func (r *Firestore) ListNotes(ctx context.Context, offset, limit int) ([]*model.Note, error) {
	iter := r.client.Collection(collNotes).
		OrderBy("UpdatedAt", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate notes")
		}
		note, err := decodeNote(snap)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (r *Firestore) SearchSimilarNotes(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Note, error) {
	vq := r.client.Collection(collNotes).FindNearest(
		"Embedding", embedding, limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search notes")
		}
		note, err := decodeNote(snap)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func decodeNote(snap *firestore.DocumentSnapshot) (*model.Note, error) {
	var doc noteDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode note")
	}
	return &model.Note{
		ID:        model.NoteID(doc.ID),
		Title:     doc.Title,
		Content:   doc.Content,
		Tags:      doc.Tags,
		Embedding: doc.Embedding,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (r *Firestore) PutProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now()
	if _, err := r.client.Collection(collProfiles).Doc(profile.UserID).Set(ctx, profile); err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("user_id", profile.UserID))
	}
	return nil
}

func (r *Firestore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	snap, err := r.client.Collection(collProfiles).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "profile not found", goerr.V("user_id", userID))
		}
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("user_id", userID))
	}

	var profile model.Profile
	if err := snap.DataTo(&profile); err != nil {
		return nil, goerr.Wrap(err, "failed to decode profile", goerr.V("user_id", userID))
	}
	return &profile, nil
}
