// Package model はドメインモデルを定義する。
package model

import "time"

// Category は記事のカテゴリを表す。
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Post はブログ記事を表す。
// Contentは保存前にサニタイズ済みのHTML。
type Post struct {
	ID          string
	Title       string
	Slug        string
	Description string
	Content     string
	CategoryID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PostWithCategory はカテゴリ情報を結合した記事。
type PostWithCategory struct {
	Post
	CategoryName string
	CategorySlug string
}
