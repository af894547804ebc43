package qiao

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qiao/pkg/errors"
)

// MaxVars 单个路径模板允许的最大变量数
const MaxVars = 6

// segmentKind 路径段类别
type segmentKind uint8

const (
	segLiteral  segmentKind = iota // 字面量段
	segVariable                    // 变量段（$name）
)

// segment 编译后的路径段
type segment struct {
	kind  segmentKind
	value string // 字面量文本或变量名
}

// Template 编译后的路径模板
// 模板语法：/users/$id/books/$bookId，$ 开头的段为变量段
type Template struct {
	raw      string
	segments []segment
	varNames []string
	ginPath  string // gin 语法形式（:name）
}

// ParseTemplate 编译路径模板
// 校验失败返回配置错误：变量名为空或非法、变量重名、变量数超上限、
// 字面量段含保留字符、路径段为空
func ParseTemplate(raw string) (*Template, error) {
	if raw == "" || raw[0] != '/' {
		return nil, errors.Configurationf("path template %q must begin with '/'", raw)
	}

	t := &Template{raw: raw}

	trimmed := strings.TrimSuffix(raw, "/")
	if trimmed == "" {
		// 根路径没有段
		t.ginPath = "/"
		return t, nil
	}

	parts := strings.Split(trimmed[1:], "/")
	ginParts := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			return nil, errors.Configurationf("path template %q contains an empty segment", raw)
		}

		if strings.HasPrefix(part, "$") {
			name := part[1:]
			if name == "" {
				return nil, errors.Configurationf("path template %q has a variable with no name", raw)
			}
			if !validVarName(name) {
				return nil, errors.Configurationf("path template %q has invalid variable name %q", raw, name)
			}
			for _, seen := range t.varNames {
				if seen == name {
					return nil, errors.Configurationf("path template %q declares variable %q twice", raw, name)
				}
			}
			if len(t.varNames) == MaxVars {
				return nil, errors.Configurationf("path template %q exceeds %d variables", raw, MaxVars)
			}
			t.segments = append(t.segments, segment{kind: segVariable, value: name})
			t.varNames = append(t.varNames, name)
			ginParts = append(ginParts, ":"+name)
			continue
		}

		// 字面量段不允许出现路由语法字符
		if strings.ContainsAny(part, ":*$") {
			return nil, errors.Configurationf("path template %q literal segment %q contains a reserved character", raw, part)
		}
		t.segments = append(t.segments, segment{kind: segLiteral, value: part})
		ginParts = append(ginParts, part)
	}

	t.ginPath = "/" + strings.Join(ginParts, "/")
	return t, nil
}

// MustParseTemplate 编译路径模板，失败时 panic（仅启动期使用）
func MustParseTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// validVarName 变量名：字母或下划线开头，后跟字母、数字、下划线
func validVarName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Raw 返回原始模板文本
func (t *Template) Raw() string {
	return t.raw
}

// Arity 返回模板声明的变量数
func (t *Template) Arity() int {
	return len(t.varNames)
}

// VarNames 返回按声明顺序排列的变量名
func (t *Template) VarNames() []string {
	out := make([]string, len(t.varNames))
	copy(out, t.varNames)
	return out
}

// String 实现 fmt.Stringer
func (t *Template) String() string {
	return t.raw
}

// Capture 从路由匹配结果按模板声明顺序提取变量值
// 模板声明的变量在匹配结果中缺失属于内部错误
func (t *Template) Capture(params gin.Params) (Vars, error) {
	var vars Vars
	for _, name := range t.varNames {
		v, ok := params.Get(name)
		if !ok {
			return Vars{}, errors.Internalf("path variable %q missing from matched route %q", name, t.raw)
		}
		vars.vals[vars.n] = v
		vars.n++
	}
	return vars, nil
}

// Vars 一次请求中按模板顺序捕获的路径变量值
// 固定容量数组避免每次请求分配
type Vars struct {
	n    int
	vals [MaxVars]string
}

// Len 返回捕获的变量数
func (v Vars) Len() int {
	return v.n
}

// At 返回第 i 个变量值，越界返回空串
func (v Vars) At(i int) string {
	if i < 0 || i >= v.n {
		return ""
	}
	return v.vals[i]
}

// Strings 返回变量值切片副本
func (v Vars) Strings() []string {
	out := make([]string, v.n)
	copy(out, v.vals[:v.n])
	return out
}

// Bind 将变量值按顺序绑定到目标指针
// 目标个数与捕获个数不一致返回内部错误，不发生部分写入
func (v Vars) Bind(dst ...*string) error {
	if len(dst) != v.n {
		return errors.Internalf("route captured %d path variables, handler binds %d", v.n, len(dst))
	}
	for i, p := range dst {
		*p = v.vals[i]
	}
	return nil
}
