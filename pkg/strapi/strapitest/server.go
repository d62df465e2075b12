// Package strapitest 提供内存版 Strapi，用于服务层 / 控制器测试
package strapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Call 上游收到的一次请求
type Call struct {
	Method      string
	Path        string
	RawQuery    string
	ContentType string
	Auth        string
	Body        []byte
}

// JSON 把请求体解析为 map
func (c Call) JSON() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(c.Body, &m)
	return m
}

// Server 内存版 Strapi
type Server struct {
	*httptest.Server

	AdminKey string

	// CreateDelay 创建前的人为延迟，用于并发测试
	CreateDelay time.Duration

	mu          sync.Mutex
	users       map[string]map[string]any // token -> user
	collections map[string][]map[string]any
	calls       []Call
	nextID      int64
	overrides   map[string]http.HandlerFunc
}

// NewServer 启动服务，测试结束时调用 Close
func NewServer(adminKey string) *Server {
	s := &Server{
		AdminKey:    adminKey,
		users:       make(map[string]map[string]any),
		collections: make(map[string][]map[string]any),
		overrides:   make(map[string]http.HandlerFunc),
		nextID:      100,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// ==================== 数据准备 ====================

// AddUser 注册一个 token 对应的用户
func (s *Server) AddUser(token string, id int64, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[token] = map[string]any{
		"id":         id,
		"documentId": fmt.Sprintf("user-%d", id),
		"username":   fmt.Sprintf("user%d", id),
		"email":      fmt.Sprintf("user%d@markket.test", id),
		"blocked":    blocked,
	}
}

// AddStore 添加店铺，owners 为拥有者的用户 id
func (s *Server) AddStore(id int64, documentID string, owners ...int64) {
	users := make([]any, 0, len(owners))
	for _, o := range owners {
		users = append(users, map[string]any{"id": o, "documentId": fmt.Sprintf("user-%d", o)})
	}
	s.Seed("stores", map[string]any{
		"id":         id,
		"documentId": documentID,
		"title":      "Store " + documentID,
		"slug":       documentID,
		"users":      users,
	})
}

// Seed 直接写入一条记录 (缺少 id / documentId 时自动生成)
func (s *Server) Seed(collection string, item map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(collection, item)
}

// Handle 覆盖某个路径的处理逻辑 (如 /api/upload)
func (s *Server) Handle(path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[path] = h
}

// ==================== 断言辅助 ====================

// Calls 返回 method 匹配的请求 (method 为空表示全部)
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count 集合当前记录数
func (s *Server) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Item 按 documentId 取记录副本
func (s *Server) Item(collection, documentID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.collections[collection] {
		if it["documentId"] == documentID {
			return copyMap(it)
		}
	}
	return nil
}

// ==================== 路由 ====================

var (
	filterKey   = regexp.MustCompile(`^filters\[([^\]]+)\]\[([^\]]+)\]\[\$eq\]$`)
	filterInKey = regexp.MustCompile(`^filters\[([^\]]+)\]\[([^\]]+)\]\[\$in\]\[\d+\]$`)

	populateIndexKey = regexp.MustCompile(`^populate\[\d+\]$`)
)

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
		Auth:        r.Header.Get("Authorization"),
		Body:        body,
	})
	override := s.overrides[r.URL.Path]
	s.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	if r.URL.Path == "/api/users/me" {
		s.serveMe(w, r)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	collection := parts[1]
	id := ""
	if len(parts) > 2 {
		id = parts[2]
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		s.serveList(w, r, collection)
	case r.Method == http.MethodGet:
		s.serveOne(w, r, collection, id)
	case r.Method == http.MethodPost && id == "":
		s.serveCreate(w, collection, body)
	case r.Method == http.MethodPut && id != "":
		s.serveUpdate(w, collection, id, body)
	case r.Method == http.MethodDelete && id != "":
		s.serveDelete(w, collection, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func (s *Server) serveMe(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	user, found := s.users[token]
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusUnauthorized, "Missing or invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) serveList(w http.ResponseWriter, r *http.Request, collection string) {
	q := r.URL.Query()
	populate := populateFields(q)

	s.mu.Lock()
	var matched []map[string]any
	for _, it := range s.collections[collection] {
		if matchesFilters(it, q) {
			matched = append(matched, expandRelations(copyMap(it), populate))
		}
	}
	s.mu.Unlock()

	// 分页：未指定 pageSize 时一页返回全部
	total := len(matched)
	pageSize := total
	if ps, err := strconv.Atoi(q.Get("pagination[pageSize]")); err == nil && ps > 0 {
		pageSize = ps
	}
	page := 1
	if p, err := strconv.Atoi(q.Get("pagination[page]")); err == nil && p > 1 {
		page = p
	}
	pageCount := 0
	if pageSize > 0 {
		pageCount = (total + pageSize - 1) / pageSize
	}

	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	matched = matched[start:end]
	if matched == nil {
		matched = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": matched,
		"meta": map[string]any{
			"pagination": map[string]any{"page": page, "pageSize": pageSize, "pageCount": pageCount, "total": total},
		},
	})
}

func (s *Server) serveOne(w http.ResponseWriter, r *http.Request, collection, id string) {
	if item := s.find(collection, id); item != nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": expandRelations(item, populateFields(r.URL.Query()))})
		return
	}
	writeError(w, http.StatusNotFound, "Not Found")
}

func (s *Server) serveCreate(w http.ResponseWriter, collection string, body []byte) {
	data, err := decodeData(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.CreateDelay > 0 {
		time.Sleep(s.CreateDelay)
	}

	s.mu.Lock()
	item := s.insertLocked(collection, data)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"data": item})
}

func (s *Server) serveUpdate(w http.ResponseWriter, collection, id string, body []byte) {
	data, err := decodeData(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.collections[collection] {
		if matchesID(it, id) {
			for k, v := range data {
				it[k] = v
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": copyMap(it)})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Not Found")
}

func (s *Server) serveDelete(w http.ResponseWriter, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.collections[collection]
	for i, it := range items {
		if matchesID(it, id) {
			s.collections[collection] = append(items[:i:i], items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Not Found")
}

// ==================== 内部方法 ====================

func (s *Server) insertLocked(collection string, item map[string]any) map[string]any {
	item = copyMap(item)
	if _, has := item["id"]; !has {
		s.nextID++
		item["id"] = s.nextID
	}
	if _, has := item["documentId"]; !has {
		item["documentId"] = fmt.Sprintf("%s-doc-%v", strings.TrimSuffix(collection, "s"), item["id"])
	}
	s.collections[collection] = append(s.collections[collection], item)
	return copyMap(item)
}

func (s *Server) find(collection, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.collections[collection] {
		if matchesID(it, id) {
			return copyMap(it)
		}
	}
	return nil
}

// populateFields 支持 populate=a、populate[]=a、populate[0]=a
func populateFields(q map[string][]string) map[string]bool {
	fields := make(map[string]bool)
	for k, values := range q {
		if k != "populate" && k != "populate[]" && !populateIndexKey.MatchString(k) {
			continue
		}
		for _, v := range values {
			for _, f := range strings.Split(v, ",") {
				fields[strings.TrimSpace(f)] = true
			}
		}
	}
	return fields
}

// expandRelations 被 populate 的关联中，裸 id 展开为 {id, documentId}，与真实 Strapi 一致
// 例如 users:[7] -> users:[{"id":7,"documentId":"user-7"}]
func expandRelations(item map[string]any, populate map[string]bool) map[string]any {
	for field := range populate {
		refs, isList := item[field].([]any)
		if !isList {
			continue
		}
		expanded := make([]any, 0, len(refs))
		for _, ref := range refs {
			switch v := ref.(type) {
			case float64, int, int64:
				expanded = append(expanded, map[string]any{
					"id":         v,
					"documentId": fmt.Sprintf("%s-%v", strings.TrimSuffix(field, "s"), v),
				})
			default:
				expanded = append(expanded, ref)
			}
		}
		item[field] = expanded
	}
	return item
}

func matchesID(item map[string]any, id string) bool {
	return fmt.Sprint(item["documentId"]) == id || fmt.Sprint(item["id"]) == id
}

// matchesFilters 支持 filters[field][sub][$eq]=value 与 filters[field][sub][$in][i]=value
func matchesFilters(item map[string]any, q map[string][]string) bool {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inSets := make(map[string][]string)
	for _, k := range keys {
		if m := filterInKey.FindStringSubmatch(k); m != nil {
			key := m[1] + "\x00" + m[2]
			inSets[key] = append(inSets[key], q[k][0])
			continue
		}
		m := filterKey.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		if !relationContains(item[m[1]], m[2], q[k][0]) {
			return false
		}
	}

	for key, values := range inSets {
		field, sub, _ := strings.Cut(key, "\x00")
		hit := false
		for _, v := range values {
			if relationContains(item[field], sub, v) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// relationContains 关联字段可能是字符串 / 数字 / 对象 / 数组
func relationContains(v any, sub, want string) bool {
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			if relationContains(el, sub, want) {
				return true
			}
		}
	case []string:
		for _, el := range t {
			if el == want {
				return true
			}
		}
	case map[string]any:
		return fmt.Sprint(t[sub]) == want
	case nil:
		return false
	default:
		return fmt.Sprint(t) == want
	}
	return false
}

func decodeData(body []byte) (map[string]any, error) {
	var req struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if req.Data == nil {
		return nil, fmt.Errorf("missing data")
	}
	return req.Data, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"data": nil,
		"error": map[string]any{
			"status":  status,
			"name":    http.StatusText(status),
			"message": msg,
			"details": map[string]any{},
		},
	})
}
