package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/repository"
)

// Tables holds the DynamoDB table and index names.
type Tables struct {
	Sessions     string
	UserSessions string
	Items        string
	CodeIndex    string
}

// DefaultTables returns the default table names.
func DefaultTables() Tables {
	return Tables{
		Sessions:     "sessions",
		UserSessions: "user_sessions",
		Items:        "items",
		CodeIndex:    "code-index",
	}
}

// sessionRepository implements repository.SessionRepository.
//
// All mutations are single UpdateItem calls with server-side list_append /
// SET expressions, so concurrent writers for the same session interleave at
// the item level instead of racing client-side read-modify-write cycles.
type sessionRepository struct {
	client *dynamodb.Client
	tables Tables
	config model.SessionConfig
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(client *dynamodb.Client, tables Tables, config model.SessionConfig) repository.SessionRepository {
	return &sessionRepository{
		client: client,
		tables: tables,
		config: config,
	}
}

func (r *sessionRepository) Insert(ctx context.Context, session *model.Session) error {
	item, err := attributevalue.MarshalMap(newSessionRecord(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return r.linkUser(ctx, session.HostID(), session.ID())
}

func (r *sessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tables.Sessions),
		Key:       sessionKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if out.Item == nil {
		return nil, repository.ErrNotFound
	}

	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return rec.toModel(r.config), nil
}

func (r *sessionRepository) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Sessions),
		IndexName:              aws.String(r.tables.CodeIndex),
		KeyConditionExpression: aws.String("code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query session by code: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, repository.ErrNotFound
	}

	// The code index projects keys only; fetch the full aggregate.
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return r.FindByID(ctx, rec.ID)
}

func (r *sessionRepository) AppendParticipant(ctx context.Context, id string, p model.Participant, status model.Status) error {
	part, err := attributevalue.Marshal(newParticipantRecord(p))
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	// Append the participant and set the status in one server-side update.
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String("SET participants = list_append(participants, :p), #st = :status, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":      &types.AttributeValueMemberL{Value: []types.AttributeValue{part}},
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to append participant: %w", err)
	}

	return r.linkUser(ctx, p.UserID, id)
}

func (r *sessionRepository) SetParticipantActive(ctx context.Context, id, userID string, active bool) error {
	// The participant's list index is stable (participants are never
	// removed), so locate it first and update by position.
	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	index := -1
	for i, p := range session.Participants() {
		if p.UserID == userID {
			index = i
			break
		}
	}
	if index < 0 {
		return repository.ErrNotFound
	}

	expr := fmt.Sprintf("SET participants[%d].isActive = :active, updatedAt = :now", index)
	cond := fmt.Sprintf("participants[%d].userId = :uid", index)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: active},
			":uid":    &types.AttributeValueMemberS{Value: userID},
			":now":    nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to update participant: %w", err)
	}
	return nil
}

func (r *sessionRepository) SetStatus(ctx context.Context, id string, status model.Status) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String("SET #st = :status, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

func (r *sessionRepository) AppendSwipe(ctx context.Context, id string, swipe model.Swipe) error {
	sw, err := attributevalue.Marshal(newSwipeRecord(swipe))
	if err != nil {
		return fmt.Errorf("failed to marshal swipe: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String("SET swipes = list_append(swipes, :s), updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   &types.AttributeValueMemberL{Value: []types.AttributeValue{sw}},
			":now": nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to append swipe: %w", err)
	}
	return nil
}

func (r *sessionRepository) AppendMatch(ctx context.Context, id string, match model.Match) error {
	m, err := attributevalue.Marshal(newMatchRecord(match))
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}

	key := matchKey(match.ItemType, match.ItemID)

	// The matchKeys string set guards idempotence server-side: two racing
	// evaluations of the same match can both attempt the append, but only
	// the first one passes the condition.
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String("SET matches = list_append(matches, :m), updatedAt = :now ADD matchKeys :mkset"),
		ConditionExpression: aws.String("attribute_exists(id) AND (attribute_not_exists(matchKeys) OR NOT contains(matchKeys, :mk))"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":     &types.AttributeValueMemberL{Value: []types.AttributeValue{m}},
			":mkset": &types.AttributeValueMemberSS{Value: []string{key}},
			":mk":    &types.AttributeValueMemberS{Value: key},
			":now":   nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to append match: %w", err)
	}
	return nil
}

func (r *sessionRepository) AppendMessage(ctx context.Context, id string, msg model.ChatMessage) error {
	m, err := attributevalue.Marshal(newMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tables.Sessions),
		Key:                 sessionKey(id),
		UpdateExpression:    aws.String("SET messages = list_append(messages, :m), updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":   &types.AttributeValueMemberL{Value: []types.AttributeValue{m}},
			":now": nowAttr(),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID string) ([]*model.Session, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.UserSessions),
		KeyConditionExpression: aws.String("userId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query user sessions: %w", err)
	}

	sessions := make([]*model.Session, 0, len(out.Items))
	for _, item := range out.Items {
		var link userSessionRecord
		if err := attributevalue.UnmarshalMap(item, &link); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user session link: %w", err)
		}
		session, err := r.FindByID(ctx, link.SessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // session reclaimed by TTL, link outlived it
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *sessionRepository) CountActiveByHost(ctx context.Context, hostID string) (int, error) {
	sessions, err := r.ListByUser(ctx, hostID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range sessions {
		if s.HostID() == hostID && !s.Status().IsTerminal() && !s.IsExpired() {
			count++
		}
	}
	return count, nil
}

// linkUser records user membership in the user_sessions table, which backs
// the per-user session listing.
func (r *sessionRepository) linkUser(ctx context.Context, userID, sessionID string) error {
	link, err := attributevalue.MarshalMap(userSessionRecord{
		UserID:    userID,
		SessionID: sessionID,
		JoinedAt:  nowUTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user session link: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tables.UserSessions),
		Item:      link,
	})
	if err != nil {
		return fmt.Errorf("failed to link user session: %w", err)
	}
	return nil
}

// Helpers

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
