package feishu

// Element 富文本元素
type Element struct {
	Tag    string `json:"tag"`
	Text   string `json:"text,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Href   string `json:"href,omitempty"`
}

// Post 富文本消息
type Post struct {
	Title string
	Lines [][]Element
}

// Line 追加一行
func (p *Post) Line(elems ...Element) *Post {
	p.Lines = append(p.Lines, elems)
	return p
}

func (p *Post) payload() map[string]any {
	return map[string]any{
		"msg_type": "post",
		"content": map[string]any{
			"post": map[string]any{
				"zh_cn": map[string]any{
					"title":   p.Title,
					"content": p.Lines,
				},
			},
		},
	}
}

// Text 文本元素
func Text(s string) Element { return Element{Tag: "text", Text: s} }

// Link 链接元素
func Link(text, href string) Element { return Element{Tag: "a", Text: text, Href: href} }
