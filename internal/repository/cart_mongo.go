package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectMongo connects and pings the server.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(serverAPI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, nil
}

type cartDoc struct {
	UserID    string     `bson:"user_id"`
	Items     []entryDoc `bson:"items"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// entryDoc stores prices as Decimal128 so no precision is lost.
type entryDoc struct {
	ProductID string           `bson:"product_id"`
	Name      string           `bson:"name"`
	Price     bson.Decimal128  `bson:"price"`
	SalePrice *bson.Decimal128 `bson:"sale_price,omitempty"`
	ImageURL  string           `bson:"image_url,omitempty"`
	Quantity  int              `bson:"quantity"`
	AddedAt   time.Time        `bson:"added_at"`
}

// MongoCartRepository keeps one document per user in the carts collection,
// with the product details denormalized into each line.
type MongoCartRepository struct {
	collection *mongo.Collection
	logger     *logging.LoggerV2
}

func NewMongoCartRepository(collection *mongo.Collection, logger *logging.LoggerV2) *MongoCartRepository {
	return &MongoCartRepository{collection: collection, logger: logger.With("cart-mongo")}
}

// EnsureIndexes creates the unique user_id index that AddItem's upsert
// relies on.
func (r *MongoCartRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_cart_user_unique"),
	})
	return err
}

func (r *MongoCartRepository) Load(ctx context.Context, userID string) (models.CartSnapshot, error) {
	snap := models.CartSnapshot{Owner: userID, Items: []models.CartEntry{}}

	var doc cartDoc
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return snap, nil
	}
	if err != nil {
		return snap, errors.Unavailable("load cart", err)
	}

	for _, d := range doc.Items {
		e, err := entryFromDoc(d)
		if err != nil {
			return snap, fmt.Errorf("decode cart item %s: %w", d.ProductID, err)
		}
		snap.Items = append(snap.Items, e)
	}
	snap.UpdatedAt = doc.UpdatedAt
	return snap, nil
}

// AddItem increments an existing line in place, otherwise pushes a new one.
// A concurrent insert of the same user surfaces as a duplicate key and is
// retried as an increment.
func (r *MongoCartRepository) AddItem(ctx context.Context, userID string, entry models.CartEntry) error {
	now := time.Now().UTC()

	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": entry.ProductID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": entry.Quantity},
				"$set": bson.M{"updated_at": now},
			})
		if err != nil {
			return errors.Unavailable("increment cart item", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		doc, err := entryToDoc(entry)
		if err != nil {
			return err
		}
		doc.AddedAt = now

		_, err = r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": entry.ProductID}},
			bson.M{
				"$push": bson.M{"items": doc},
				"$set":  bson.M{"updated_at": now},
			},
			options.UpdateOne().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		if err != nil {
			return errors.Unavailable("add cart item", err)
		}
		return nil
	}

	return errors.Unavailable("add cart item", fmt.Errorf("concurrent update of cart %s", userID))
}

func (r *MongoCartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "items.product_id": productID},
		bson.M{"$set": bson.M{
			"items.$.quantity": quantity,
			"updated_at":       time.Now().UTC(),
		}})
	if err != nil {
		return errors.Unavailable("update cart item", err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrItemNotFound
	}
	return nil
}

func (r *MongoCartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return errors.Unavailable("remove cart item", err)
	}
	return nil
}

func (r *MongoCartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return errors.Unavailable("clear cart", err)
	}
	return nil
}

func entryToDoc(e models.CartEntry) (entryDoc, error) {
	price, err := bson.ParseDecimal128(e.Price.String())
	if err != nil {
		return entryDoc{}, fmt.Errorf("encode price: %w", err)
	}
	doc := entryDoc{
		ProductID: e.ProductID,
		Name:      e.Name,
		Price:     price,
		ImageURL:  e.ImageURL,
		Quantity:  e.Quantity,
		AddedAt:   e.AddedAt,
	}
	if e.SalePrice != nil {
		sale, err := bson.ParseDecimal128(e.SalePrice.String())
		if err != nil {
			return entryDoc{}, fmt.Errorf("encode sale price: %w", err)
		}
		doc.SalePrice = &sale
	}
	return doc, nil
}

func entryFromDoc(d entryDoc) (models.CartEntry, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return models.CartEntry{}, err
	}
	e := models.CartEntry{
		ProductID: d.ProductID,
		Name:      d.Name,
		Price:     price,
		ImageURL:  d.ImageURL,
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt,
	}
	if d.SalePrice != nil {
		sale, err := decimal.NewFromString(d.SalePrice.String())
		if err != nil {
			return models.CartEntry{}, err
		}
		e.SalePrice = &sale
	}
	return e, nil
}
