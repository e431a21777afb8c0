package shopify

import (
	"context"
	"fmt"
	"log"

	"github.com/tidwall/gjson"
)

// ActiveProductsFilter selects published active products and skips
// out-of-print listings up front so they never count against the page budget.
const ActiveProductsFilter = "status:active AND published_status:published AND -title:OP:*"

// maxPageSize is the largest page Shopify allows for product queries.
const maxPageSize = 250

const productsQuery = `
query($first: Int!, $after: String, $query: String!) {
    products(first: $first, after: $after, query: $query) {
        edges {
            node {
                id
                title
                handle
                status
                descriptionHtml
                images(first: 10) {
                    edges {
                        node {
                            id
                            altText
                        }
                    }
                }
                tags
                priceRangeV2 {
                    minVariantPrice {
                        amount
                    }
                }
                collections(first: 10) {
                    edges {
                        node {
                            id
                            title
                        }
                    }
                }
                metafields(first: 20) {
                    edges {
                        node {
                            namespace
                            key
                            value
                        }
                    }
                }
                variants(first: 20) {
                    edges {
                        node {
                            id
                            sku
                            barcode
                            price
                            inventoryItem {
                                id
                                inventoryLevels(first: 1) {
                                    edges {
                                        node {
                                            location {
                                                id
                                                name
                                                isActive
                                                fulfillsOnlineOrders
                                            }
                                        }
                                    }
                                }
                            }
                        }
                    }
                }
            }
        }
        pageInfo {
            hasNextPage
            endCursor
        }
    }
}
`

// Product is the validation-relevant slice of a Shopify product.
type Product struct {
	ID              string
	Title           string
	Handle          string
	Status          string
	DescriptionHTML string
	Tags            []string
	MinPrice        string
	Images          []Image
	Collections     []string
	Metafields      map[string]string // key -> value
	Variants        []Variant
}

type Image struct {
	ID      string
	AltText string
}

type Variant struct {
	ID        string
	SKU       string
	Barcode   string
	Price     string
	Locations []Location
}

type Location struct {
	ID                   string
	Name                 string
	Active               bool
	FulfillsOnlineOrders bool
}

// FetchActiveProducts pages through the product catalog up to limit products.
func (c *Client) FetchActiveProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid product limit %d", limit)
	}

	pageSize := maxPageSize
	if limit < pageSize {
		pageSize = limit
	}

	var products []Product
	cursor := ""

	for len(products) < limit {
		variables := map[string]any{
			"first": pageSize,
			"query": ActiveProductsFilter,
		}
		if cursor != "" {
			variables["after"] = cursor
		}

		data, err := c.Run(ctx, productsQuery, variables)
		if err != nil {
			return nil, fmt.Errorf("fetch products: %w", err)
		}

		page := data.Get("products")
		edges := page.Get("edges").Array()
		for _, edge := range edges {
			if len(products) >= limit {
				break
			}
			products = append(products, parseProduct(edge.Get("node")))
		}

		log.Printf("shopify: fetched %d products, total %d", len(edges), len(products))

		if !page.Get("pageInfo.hasNextPage").Bool() {
			break
		}
		cursor = page.Get("pageInfo.endCursor").String()
	}

	return products, nil
}

func parseProduct(node gjson.Result) Product {
	p := Product{
		ID:              node.Get("id").String(),
		Title:           node.Get("title").String(),
		Handle:          node.Get("handle").String(),
		Status:          node.Get("status").String(),
		DescriptionHTML: node.Get("descriptionHtml").String(),
		MinPrice:        node.Get("priceRangeV2.minVariantPrice.amount").String(),
		Metafields:      make(map[string]string),
	}

	for _, tag := range node.Get("tags").Array() {
		p.Tags = append(p.Tags, tag.String())
	}
	for _, edge := range node.Get("images.edges").Array() {
		p.Images = append(p.Images, Image{
			ID:      edge.Get("node.id").String(),
			AltText: edge.Get("node.altText").String(),
		})
	}
	for _, edge := range node.Get("collections.edges").Array() {
		p.Collections = append(p.Collections, edge.Get("node.title").String())
	}
	for _, edge := range node.Get("metafields.edges").Array() {
		p.Metafields[edge.Get("node.key").String()] = edge.Get("node.value").String()
	}
	for _, edge := range node.Get("variants.edges").Array() {
		v := Variant{
			ID:      edge.Get("node.id").String(),
			SKU:     edge.Get("node.sku").String(),
			Barcode: edge.Get("node.barcode").String(),
			Price:   edge.Get("node.price").String(),
		}
		for _, lvl := range edge.Get("node.inventoryItem.inventoryLevels.edges").Array() {
			v.Locations = append(v.Locations, Location{
				ID:                   lvl.Get("node.location.id").String(),
				Name:                 lvl.Get("node.location.name").String(),
				Active:               lvl.Get("node.location.isActive").Bool(),
				FulfillsOnlineOrders: lvl.Get("node.location.fulfillsOnlineOrders").Bool(),
			})
		}
		p.Variants = append(p.Variants, v)
	}

	return p
}
