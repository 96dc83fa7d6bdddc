package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/db/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

/*
setupTestDAO 内存 SQLite，单连接保证所有查询落在同一个库
*/
func setupTestDAO(t *testing.T) *dao.DAO {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Item{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return dao.New(db)
}

func newTestUserService(t *testing.T) (*UserService, *dao.DAO) {
	d := setupTestDAO(t)
	s := NewUserService(d)
	s.bcryptCost = bcrypt.MinCost
	return s, d
}

/*
TestUserService_FirstUserIsOwner 第一个注册的用户为 owner，之后为 user
*/
func TestUserService_FirstUserIsOwner(t *testing.T) {
	s, _ := newTestUserService(t)

	first, err := s.Register(&SignupRequest{Username: "founder", Email: "Founder@Example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if first.Role != models.RoleOwner {
		t.Errorf("首个用户应为 owner, 实际 %s", first.Role)
	}
	if first.Email != "founder@example.com" {
		t.Errorf("邮箱应统一小写, 实际 %s", first.Email)
	}

	second, err := s.Register(&SignupRequest{Username: "visitor", Email: "visitor@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if second.Role != models.RoleUser {
		t.Errorf("后续用户应为 user, 实际 %s", second.Role)
	}

	_, err = s.Register(&SignupRequest{Username: "another", Email: "visitor@example.com", Password: "secret123"})
	if !IsConflict(err) {
		t.Errorf("重复邮箱应返回冲突, 实际 %v", err)
	}
}

func TestUserService_RegisterValidation(t *testing.T) {
	s, _ := newTestUserService(t)

	cases := []SignupRequest{
		{Username: "ab", Email: "a@example.com", Password: "secret123"},
		{Username: "valid_name", Email: "not-an-email", Password: "secret123"},
		{Username: "valid_name", Email: "a@example.com", Password: "short1"},
		{Username: "valid_name", Email: "a@example.com", Password: "lettersonly"},
	}
	for i := range cases {
		if _, err := s.Register(&cases[i]); !IsValidationError(err) {
			t.Errorf("第 %d 个请求应返回 ValidationError, 实际 %v", i, err)
		}
	}
}

/*
TestUserService_Authenticate 邮箱不存在和密码错误返回同一错误
*/
func TestUserService_Authenticate(t *testing.T) {
	s, _ := newTestUserService(t)
	if _, err := s.Register(&SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	user, err := s.Authenticate("ALICE@example.com", "secret123")
	if err != nil || user == nil {
		t.Fatalf("正确凭据应登录成功: %v", err)
	}

	if _, err := s.Authenticate("alice@example.com", "wrong-password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("密码错误应返回 ErrInvalidCredentials, 实际 %v", err)
	}
	if _, err := s.Authenticate("nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("邮箱不存在应返回 ErrInvalidCredentials, 实际 %v", err)
	}
}

/*
TestUserService_UpdateRole 未知角色拒绝，最后一个 owner 不可降级或删除
*/
func TestUserService_UpdateRole(t *testing.T) {
	s, _ := newTestUserService(t)
	owner, _ := s.Register(&SignupRequest{Username: "owner", Email: "owner@example.com", Password: "secret123"})
	member, _ := s.Register(&SignupRequest{Username: "member", Email: "member@example.com", Password: "secret123"})

	if _, err := s.UpdateRole(member.ID, "superuser"); !IsValidationError(err) {
		t.Errorf("未知角色应返回 ValidationError, 实际 %v", err)
	}
	if _, err := s.UpdateRole("missing", "editor"); !errors.Is(err, ErrNotFound) {
		t.Errorf("不存在的用户应返回 ErrNotFound, 实际 %v", err)
	}

	updated, err := s.UpdateRole(member.ID, "editor")
	if err != nil || updated.Role != models.RoleEditor {
		t.Fatalf("提升为 editor 失败: %v", err)
	}

	if _, err := s.UpdateRole(owner.ID, "user"); !errors.Is(err, ErrLastOwner) {
		t.Errorf("最后一个 owner 不可降级, 实际 %v", err)
	}
	if err := s.DeleteUser(owner.ID); !errors.Is(err, ErrLastOwner) {
		t.Errorf("最后一个 owner 不可删除, 实际 %v", err)
	}

	if _, err := s.UpdateRole(member.ID, "owner"); err != nil {
		t.Fatalf("提升为 owner 失败: %v", err)
	}
	if _, err := s.UpdateRole(owner.ID, "user"); err != nil {
		t.Errorf("存在其他 owner 时应允许降级: %v", err)
	}
}

/* stubStock 固定库存结果 */
type stubStock struct {
	infos map[string]StockInfo
	calls [][]string
	err   error
}

func (s *stubStock) GetStock(ctx context.Context, ids []string) (map[string]StockInfo, error) {
	s.calls = append(s.calls, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]StockInfo, len(ids))
	for _, id := range ids {
		if info, ok := s.infos[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (s *stubStock) MaxIDs() int {
	return 2
}

/*
TestItemService_CreateParsesAssetID 未填 asset_id 时从链接解析
*/
func TestItemService_CreateParsesAssetID(t *testing.T) {
	d := setupTestDAO(t)
	s := NewItemService(d, nil)

	item, err := s.Create(&ItemRequest{
		Title:    "Crystal Wings",
		ItemLink: "https://www.roblox.com/catalog/123456789/Crystal-Wings",
		Method:   "web_drop",
	}, "editor-1")
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if item.AssetID != "123456789" {
		t.Errorf("asset_id 应从链接解析, 实际 %q", item.AssetID)
	}
	if item.Status != models.ItemUpcoming || item.CreatedBy != "editor-1" {
		t.Errorf("默认字段不匹配: %+v", item)
	}

	invalid := []ItemRequest{
		{Title: ""},
		{Title: "x", Method: "airdrop"},
		{Title: "x", Status: "pending"},
		{Title: "x", ItemLink: "javascript:alert(1)"},
		{Title: "x", AssetID: "12ab"},
		{Title: "x", Price: -1},
	}
	for i := range invalid {
		if _, err := s.Create(&invalid[i], "editor-1"); !IsValidationError(err) {
			t.Errorf("第 %d 个请求应返回 ValidationError, 实际 %v", i, err)
		}
	}
}

/*
TestItemService_ListWithStockAutoSoldOut 库存读数为 0 时自动标记售罄
*/
func TestItemService_ListWithStockAutoSoldOut(t *testing.T) {
	d := setupTestDAO(t)
	stock := &stubStock{infos: map[string]StockInfo{
		"1": {Status: StockOK, CurrentStock: 0, TotalStock: 100},
		"2": {Status: StockOK, CurrentStock: 5, TotalStock: 100},
		"3": {Status: StockError, Error: "unexpected status code: 500"},
	}}
	s := NewItemService(d, stock)

	for _, id := range []string{"1", "2", "3"} {
		if _, err := s.Create(&ItemRequest{Title: "Item " + id, AssetID: id}, "editor-1"); err != nil {
			t.Fatalf("创建失败: %v", err)
		}
	}
	if _, err := s.Create(&ItemRequest{Title: "No Asset"}, "editor-1"); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	items, total, err := s.List(context.Background(), dao.ItemFilter{}, true)
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if total != 4 {
		t.Fatalf("总数应为 4, 实际 %d", total)
	}

	/* MaxIDs 为 2，3 个 ID 分两次查询 */
	if len(stock.calls) != 2 {
		t.Errorf("应分 2 次查询库存, 实际 %v", stock.calls)
	}

	byAsset := make(map[string]ItemWithStock)
	for _, it := range items {
		byAsset[it.AssetID] = it
	}
	if !byAsset["1"].SoldOut || byAsset["1"].Stock == nil {
		t.Errorf("库存为 0 的条目应自动售罄: %+v", byAsset["1"])
	}
	if byAsset["2"].SoldOut {
		t.Error("有库存的条目不应售罄")
	}
	if byAsset["3"].SoldOut || byAsset["3"].Stock.Status != StockError {
		t.Errorf("错误读数不应触发售罄: %+v", byAsset["3"])
	}
	if byAsset[""].Stock != nil {
		t.Error("无 asset_id 的条目不应附带库存")
	}

	/* 售罄已写库 */
	items, _, _ = s.List(context.Background(), dao.ItemFilter{}, false)
	for _, it := range items {
		if it.AssetID == "1" && !it.SoldOut {
			t.Error("售罄标记应持久化")
		}
	}
}

/*
TestItemService_ListStockFailure 库存查询失败不影响列表
*/
func TestItemService_ListStockFailure(t *testing.T) {
	d := setupTestDAO(t)
	s := NewItemService(d, &stubStock{err: context.Canceled})
	if _, err := s.Create(&ItemRequest{Title: "Hat", AssetID: "77"}, "editor-1"); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	items, _, err := s.List(context.Background(), dao.ItemFilter{}, true)
	if err != nil {
		t.Fatalf("库存失败不应影响列表: %v", err)
	}
	if len(items) != 1 || items[0].Stock != nil {
		t.Errorf("列表结果不匹配: %+v", items)
	}

	if _, _, err := s.List(context.Background(), dao.ItemFilter{Status: "bogus"}, false); !IsValidationError(err) {
		t.Errorf("非法状态应返回 ValidationError, 实际 %v", err)
	}
}

/*
TestItemService_ScheduleAndSoldOut 排期和手动售罄
*/
func TestItemService_ScheduleAndSoldOut(t *testing.T) {
	d := setupTestDAO(t)
	s := NewItemService(d, nil)
	item, _ := s.Create(&ItemRequest{Title: "Hat"}, "editor-1")

	when := time.Date(2025, 1, 2, 15, 0, 0, 0, time.FixedZone("EST", -5*3600))
	scheduled, err := s.Schedule(item.ID, &when, "editor-2")
	if err != nil {
		t.Fatalf("排期失败: %v", err)
	}
	if !scheduled.ReleaseAt.Equal(when) || scheduled.ReleaseAt.Location() != time.UTC {
		t.Errorf("发售时间应转为 UTC: %v", scheduled.ReleaseAt)
	}

	got, _ := s.Get(context.Background(), item.ID, false)
	if got.ReleaseAt == nil || !got.ReleaseAt.Equal(when) || got.UpdatedBy != "editor-2" {
		t.Errorf("排期未持久化: %+v", got.Item)
	}

	if _, err := s.Schedule("missing", nil, "editor-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("不存在的条目应返回 ErrNotFound, 实际 %v", err)
	}

	soldOut, err := s.SetSoldOut(item.ID, true)
	if err != nil || !soldOut.SoldOut {
		t.Fatalf("手动售罄失败: %v", err)
	}

	if err := s.Delete(item.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := s.Get(context.Background(), item.ID, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("删除后应返回 ErrNotFound, 实际 %v", err)
	}
}

/*
TestCleanupService_ReleasesAndPurges 定时任务翻转状态并清理缓存
*/
func TestCleanupService_ReleasesAndPurges(t *testing.T) {
	d := setupTestDAO(t)
	f := newFakeFetcher()
	cache, clock := newTestStockCache(f, testStockConfig())
	_, _ = cache.GetStock(context.Background(), []string{"1"})
	clock.Advance(11 * time.Minute)

	past := clock.Now().Add(-48 * time.Hour)
	item := &models.Item{Title: "Old", ReleaseAt: &past, Status: models.ItemUpcoming}
	if err := d.CreateItem(item); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	svc := NewCleanupService(d, cache)
	svc.now = clock.Now
	svc.runCleanup()

	if s := cache.Stats(); s.Entries != 0 {
		t.Errorf("超过 10 倍成功 TTL 的条目应被清理, 剩余 %d", s.Entries)
	}
	got, _ := d.GetItem(item.ID)
	if got.Status != models.ItemReleased {
		t.Errorf("过期条目应为 released, 实际 %s", got.Status)
	}
}
