package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/alexcool68/ST-backend/internal/model"
)

// Users 提供用户凭证记录的持久化访问。
//
// 默认的读取路径通过投影排除密码哈希，只有显式要求
// （登录校验）才会带出该字段。
type Users struct {
	coll   *mongo.Collection
	tokens *Tokens
}

// noPassword 默认投影：任何读取都不返回密码哈希。
var noPassword = bson.M{"password": 0}

// FindByEmail 按邮箱查找用户。
//
// withPassword 为 true 时结果包含密码哈希（仅用于凭证校验）。
func (s *Users) FindByEmail(ctx context.Context, email string, withPassword bool) (*model.User, error) {
	opts := options.FindOne()
	if !withPassword {
		opts = opts.SetProjection(noPassword)
	}

	var u model.User
	err := s.coll.FindOne(ctx, bson.M{"email": email}, opts).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByID 按 ID 查找用户，结果不包含密码哈希。
func (s *Users) FindByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var u model.User
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(noPassword)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create 持久化一个新用户。
//
// 调用方负责提前写入密码哈希（model.User.SetPassword）；
// 角色集合为空时填充默认角色 user。邮箱冲突返回 ErrDuplicateEmail。
func (s *Users) Create(ctx context.Context, u *model.User) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if len(u.Roles) == 0 {
		u.Roles = []string{model.RoleUser}
	}

	res, err := s.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		u.ID = oid
	}
	return nil
}

// UpdatePassword 覆盖用户的密码哈希。
func (s *Users) UpdatePassword(ctx context.Context, id bson.ObjectID, passwordHash string) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"password":  passwordHash,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActivated 将用户标记为已激活。该状态只进不退。
func (s *Users) SetActivated(ctx context.Context, id bson.ObjectID) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"isActivated": true,
		"updatedAt":   time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile 更新用户的可编辑资料字段，返回更新后的记录。
func (s *Users) UpdateProfile(ctx context.Context, id string, firstName, lastName *string) (*model.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	set := bson.M{"updatedAt": time.Now()}
	if firstName != nil {
		set["firstName"] = *firstName
	}
	if lastName != nil {
		set["lastName"] = *lastName
	}

	res, err := s.coll.UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// DeleteByID 删除用户并级联删除其所有未消费的动作令牌。
func (s *Users) DeleteByID(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return s.tokens.DeleteAllForUser(ctx, oid)
}

// List 返回全部用户（不含密码哈希），按创建时间倒序。
func (s *Users) List(ctx context.Context) ([]model.User, error) {
	cur, err := s.coll.Find(ctx, bson.M{},
		options.Find().SetProjection(noPassword).SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	users := []model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Count 返回用户总数。
func (s *Users) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}

// CountActivated 返回已激活用户数。
func (s *Users) CountActivated(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"isActivated": true})
}
