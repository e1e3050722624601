package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/happymapper/internal/models"
)

const (
	venuesCollection      = "venues"
	dealsCollection       = "deals"
	usersCollection       = "users"
	finalSchemaCollection = "final_schema"
)

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// getDoc returns nil, nil when the document does not exist.
func (c *Client) getDoc(ctx context.Context, collection, id string) (*firestore.DocumentSnapshot, error) {
	doc, err := c.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return doc, nil
}

// GetVenue retrieves a venue document by ID.
func (c *Client) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	doc, err := c.getDoc(ctx, venuesCollection, id)
	if err != nil || doc == nil {
		return nil, err
	}
	v := venueFromData(doc.Ref.ID, doc.Data())
	return &v, nil
}

// ListVenues returns every document of the venues collection.
func (c *Client) ListVenues(ctx context.Context) ([]models.Venue, error) {
	docs, err := c.client.Collection(venuesCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	venues := make([]models.Venue, 0, len(docs))
	for _, doc := range docs {
		venues = append(venues, venueFromData(doc.Ref.ID, doc.Data()))
	}
	return venues, nil
}

// ActiveDealsForVenue returns the venue's deals with active == true.
func (c *Client) ActiveDealsForVenue(ctx context.Context, venueID string) ([]models.Deal, error) {
	docs, err := c.client.Collection(dealsCollection).
		Where("venueId", "==", venueID).
		Where("active", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query deals for venue %s: %w", venueID, err)
	}
	return decodeDeals(docs), nil
}

// ActiveDeals returns every deal with active == true.
func (c *Client) ActiveDeals(ctx context.Context) ([]models.Deal, error) {
	docs, err := c.client.Collection(dealsCollection).
		Where("active", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query active deals: %w", err)
	}
	return decodeDeals(docs), nil
}

func decodeDeals(docs []*firestore.DocumentSnapshot) []models.Deal {
	deals := make([]models.Deal, 0, len(docs))
	for _, doc := range docs {
		deals = append(deals, dealFromData(doc.Ref.ID, doc.Data()))
	}
	return deals
}

// GetDeal retrieves a deal by its Firestore document ID.
func (c *Client) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	doc, err := c.getDoc(ctx, dealsCollection, id)
	if err != nil || doc == nil {
		return nil, err
	}
	d := dealFromData(doc.Ref.ID, doc.Data())
	return &d, nil
}

// GetDenormalizedVenue retrieves a final_schema document by ID.
func (c *Client) GetDenormalizedVenue(ctx context.Context, id string) (*models.DenormalizedVenue, error) {
	doc, err := c.getDoc(ctx, finalSchemaCollection, id)
	if err != nil || doc == nil {
		return nil, err
	}
	v := denormalizedFromData(doc.Ref.ID, doc.Data())
	return &v, nil
}

// ListDenormalizedVenues returns every final_schema document.
func (c *Client) ListDenormalizedVenues(ctx context.Context) ([]models.DenormalizedVenue, error) {
	docs, err := c.client.Collection(finalSchemaCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", finalSchemaCollection, err)
	}
	return decodeDenormalized(docs), nil
}

func decodeDenormalized(docs []*firestore.DocumentSnapshot) []models.DenormalizedVenue {
	venues := make([]models.DenormalizedVenue, 0, len(docs))
	for _, doc := range docs {
		venues = append(venues, denormalizedFromData(doc.Ref.ID, doc.Data()))
	}
	return venues
}

// CreateDeal stores a new deal and links it to its venue and uploader in one
// transaction. The venue and user id lists are appended with ArrayUnion so
// concurrent uploads never overwrite each other.
func (c *Client) CreateDeal(ctx context.Context, deal models.Deal) (string, error) {
	dealRef := c.client.Collection(dealsCollection).NewDoc()
	doc := dealDocument(deal)

	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var venueRef *firestore.DocumentRef
		if deal.VenueID != "" {
			venueRef = c.client.Collection(venuesCollection).Doc(deal.VenueID)
			// Reads must precede writes inside a transaction.
			if _, err := tx.Get(venueRef); err != nil {
				if status.Code(err) == codes.NotFound {
					venueRef = nil
				} else {
					return err
				}
			}
		}

		if err := tx.Create(dealRef, doc); err != nil {
			return err
		}
		if venueRef != nil {
			if err := tx.Update(venueRef, []firestore.Update{
				{Path: "dealIds", Value: firestore.ArrayUnion(dealRef.ID)},
			}); err != nil {
				return err
			}
		}
		if deal.UserID != "" {
			userRef := c.client.Collection(usersCollection).Doc(deal.UserID)
			if err := tx.Set(userRef, map[string]any{
				"uploadedDealIds": firestore.ArrayUnion(dealRef.ID),
			}, firestore.MergeAll); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", models.ErrDealExists
		}
		return "", fmt.Errorf("failed to create deal: %w", err)
	}

	slog.Info("Deal stored", "id", dealRef.ID, "venue_id", deal.VenueID, "user_id", deal.UserID)
	return dealRef.ID, nil
}

// WatchDenormalizedVenues calls fn with the full final_schema collection on
// every change until ctx is cancelled or fn returns an error.
func (c *Client) WatchDenormalizedVenues(ctx context.Context, fn func([]models.DenormalizedVenue) error) error {
	return c.watch(ctx, c.client.Collection(finalSchemaCollection).Query, func(docs []*firestore.DocumentSnapshot) error {
		return fn(decodeDenormalized(docs))
	})
}

// WatchActiveDeals calls fn with every active deal on each change.
func (c *Client) WatchActiveDeals(ctx context.Context, fn func([]models.Deal) error) error {
	q := c.client.Collection(dealsCollection).Where("active", "==", true)
	return c.watch(ctx, q, func(docs []*firestore.DocumentSnapshot) error {
		return fn(decodeDeals(docs))
	})
}

func (c *Client) watch(ctx context.Context, q firestore.Query, fn func([]*firestore.DocumentSnapshot) error) error {
	it := q.Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("snapshot listener: %w", err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := fn(docs); err != nil {
			return err
		}
	}
}
