package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/utils"
)

const orderStripes = 64

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record modified concurrently")
)

// Store 封装数据库句柄，负责开启事务作用域
type Store struct {
	db    *gorm.DB
	order *utils.KeyedMutex
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, order: utils.NewKeyedMutex(orderStripes)}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Reader 返回非事务作用域，只用于读取
func (s *Store) Reader() *Scope {
	return &Scope{db: s.db}
}

// Current 返回 ctx 中的事务作用域；不在事务中时退化为只读作用域。
// 事务内的读取必须走同一个句柄，否则单连接的 SQLite 会自锁
func (s *Store) Current(ctx context.Context) *Scope {
	if sc := ScopeFrom(ctx); sc != nil {
		return sc
	}
	return s.Reader()
}

type scopeKey struct{}

// ScopeFrom 取出 ctx 中的事务作用域，没有则返回 nil
func ScopeFrom(ctx context.Context) *Scope {
	sc, _ := ctx.Value(scopeKey{}).(*Scope)
	return sc
}

// WithTransaction 在事务中执行 fn。ctx 中已有事务作用域时直接复用，
// 由最外层负责提交或回滚；提交成功后按注册顺序执行 AfterCommit 回调，
// 失败时执行 AfterRollback 回调
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, sc *Scope) error) error {
	if outer := ScopeFrom(ctx); outer.InTransaction() {
		return fn(ctx, outer)
	}

	sc := &Scope{tx: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc.db = tx
		return fn(context.WithValue(ctx, scopeKey{}, sc), sc)
	})
	if err != nil {
		for _, hook := range sc.afterRollback {
			hook()
		}
		return err
	}
	for _, hook := range sc.afterCommit {
		hook()
	}
	return nil
}

// WithOrderedTransaction 持有 keys 的顺序锁执行事务，直到提交后回调全部返回。
// 同一 key 上的事务因此按提交顺序发布事件。
// 嵌套在已有事务中时不再加锁，顺序由最外层决定
func (s *Store) WithOrderedTransaction(ctx context.Context, keys []string, fn func(ctx context.Context, sc *Scope) error) error {
	if outer := ScopeFrom(ctx); outer.InTransaction() {
		return fn(ctx, outer)
	}
	unlock := s.order.Lock(keys...)
	defer unlock()
	return s.WithTransaction(ctx, fn)
}

// WithSerializedTransaction 锁住全部顺序键，用于一次触及任意多个 key 的事务
func (s *Store) WithSerializedTransaction(ctx context.Context, fn func(ctx context.Context, sc *Scope) error) error {
	if outer := ScopeFrom(ctx); outer.InTransaction() {
		return fn(ctx, outer)
	}
	unlock := s.order.LockAll()
	defer unlock()
	return s.WithTransaction(ctx, fn)
}

// Ordering 暴露顺序锁，供需要与事务发布对齐的调用方使用
func (s *Store) Ordering() *utils.KeyedMutex {
	return s.order
}

// Scope 一组读写共享的数据库句柄；tx 为 true 时所有写入属于同一事务
type Scope struct {
	db            *gorm.DB
	tx            bool
	afterCommit   []func()
	afterRollback []func()
}

// InTransaction 对 nil 作用域同样安全
func (sc *Scope) InTransaction() bool {
	return sc != nil && sc.tx
}

// AfterCommit 注册提交后回调；非事务作用域立即执行
func (sc *Scope) AfterCommit(fn func()) {
	if !sc.tx {
		fn()
		return
	}
	sc.afterCommit = append(sc.afterCommit, fn)
}

// AfterRollback 注册回滚后回调；非事务作用域不会回滚，回调被忽略
func (sc *Scope) AfterRollback(fn func()) {
	if !sc.tx {
		return
	}
	sc.afterRollback = append(sc.afterRollback, fn)
}

func (sc *Scope) DB() *gorm.DB {
	return sc.db
}

func (sc *Scope) Rooms() IRoomRepository       { return NewRoomRepository(sc.db) }
func (sc *Scope) Tasks() ITaskRepository       { return NewTaskRepository(sc.db) }
func (sc *Scope) Chats() IChatRepository       { return NewChatRepository(sc.db) }
func (sc *Scope) Threads() IThreadRepository   { return NewThreadRepository(sc.db) }
func (sc *Scope) Messages() IMessageRepository { return NewMessageRepository(sc.db) }
func (sc *Scope) Files() IFileRepository       { return NewFileRepository(sc.db) }
func (sc *Scope) Users() IUserRepository       { return NewUserRepository(sc.db) }

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// updateVersioned 以乐观锁方式写回整行：仅当库中版本仍为旧值时更新并递增版本
func updateVersioned(ctx context.Context, db *gorm.DB, value any, version *int64) error {
	prev := *version
	*version = prev + 1
	res := db.WithContext(ctx).Model(value).Where("version = ?", prev).Select("*").Omit("created_at").Updates(value)
	if res.Error != nil {
		*version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = prev
		return ErrConflict
	}
	return nil
}

func deleteByID(ctx context.Context, db *gorm.DB, value any, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
