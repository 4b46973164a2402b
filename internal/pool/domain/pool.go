package domain

import "github.com/bwmarrin/snowflake"

// IsUnlimited reports whether the pool has no consumption cap.
func (p *Pool) IsUnlimited() bool {
	return p.Quantity == Unlimited
}

// AddProvidedProduct appends a fresh provided-product entry unless the
// product is already provided.
func (p *Pool) AddProvidedProduct(productID, productName string) {
	for _, pp := range p.ProvidedProducts {
		if pp.ProductID == productID {
			return
		}
	}
	p.ProvidedProducts = append(p.ProvidedProducts, ProvidedProduct{
		PoolID:      p.ID,
		ProductID:   productID,
		ProductName: productName,
	})
}

// AddDerivedProvidedProduct is AddProvidedProduct for the derived product's set.
func (p *Pool) AddDerivedProvidedProduct(productID, productName string) {
	for _, pp := range p.DerivedProvidedProducts {
		if pp.ProductID == productID {
			return
		}
	}
	p.DerivedProvidedProducts = append(p.DerivedProvidedProducts, DerivedProvidedProduct{
		PoolID:      p.ID,
		ProductID:   productID,
		ProductName: productName,
	})
}

// ProductIDs returns the top-level product ID and every provided product ID.
func (p *Pool) ProductIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.ProvidedProducts)+1)
	ids[p.ProductID] = struct{}{}
	for _, pp := range p.ProvidedProducts {
		ids[pp.ProductID] = struct{}{}
	}
	return ids
}

// Attribute returns the value of a pool attribute.
func (p *Pool) Attribute(name string) (string, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttribute sets or overwrites a pool attribute.
func (p *Pool) SetAttribute(name, value string) {
	for i := range p.Attributes {
		if p.Attributes[i].Name == name {
			p.Attributes[i].Value = value
			return
		}
	}
	p.Attributes = append(p.Attributes, PoolAttribute{PoolID: p.ID, Name: name, Value: value})
}

// HasProductAttribute reports whether the product attribute cache holds name.
func (p *Pool) HasProductAttribute(name string) bool {
	_, ok := p.ProductAttribute(name)
	return ok
}

// ProductAttribute returns the cached product attribute called name.
func (p *Pool) ProductAttribute(name string) (ProductPoolAttribute, bool) {
	for _, a := range p.ProductAttributes {
		if a.Name == name {
			return a, true
		}
	}
	return ProductPoolAttribute{}, false
}

// SetProductAttribute sets or overwrites a cached product attribute.
func (p *Pool) SetProductAttribute(name, value, productID string) {
	for i := range p.ProductAttributes {
		if p.ProductAttributes[i].Name == name {
			p.ProductAttributes[i].Value = value
			p.ProductAttributes[i].ProductID = productID
			return
		}
	}
	p.ProductAttributes = append(p.ProductAttributes, ProductPoolAttribute{
		PoolID:    p.ID,
		Name:      name,
		Value:     value,
		ProductID: productID,
	})
}

// AssignID sets the pool ID on the pool and every child row.
func (p *Pool) AssignID(id snowflake.ID) {
	p.ID = id
	for i := range p.ProvidedProducts {
		p.ProvidedProducts[i].PoolID = p.ID
	}
	for i := range p.DerivedProvidedProducts {
		p.DerivedProvidedProducts[i].PoolID = p.ID
	}
	for i := range p.Attributes {
		p.Attributes[i].PoolID = p.ID
	}
	for i := range p.ProductAttributes {
		p.ProductAttributes[i].PoolID = p.ID
	}
}
