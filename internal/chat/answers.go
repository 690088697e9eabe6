package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/offerforge/internal/conversation"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/validation"
)

// answer validates a card response, applies its effect and only then marks
// the card answered, so a rejected answer leaves the card open.
func (t *Turn) answer(ctx context.Context, resp domain.CardResponse) error {
	msg, ok := t.h.Card(resp.CardID)
	if !ok || msg.Card == nil {
		return userErr("That question is no longer available.", conversation.ErrCardNotFound)
	}
	if msg.Completed {
		return userErr("You've already answered that question.", conversation.ErrAlreadyAnswered)
	}
	if !msg.Card.AcceptsInput() {
		return userErr("That card doesn't take an answer.", conversation.ErrNotInput)
	}

	if err := t.apply(ctx, msg.Card, resp); err != nil {
		return err
	}
	_, ref, err := t.h.Answer(resp)
	if err != nil {
		return err
	}
	t.logTranscript("outbound", "chat_card_response", ref.Summary)
	t.save(ctx)
	return nil
}

func (t *Turn) apply(ctx context.Context, card *domain.Card, resp domain.CardResponse) error {
	switch stepOf(card.ID) {
	case stepTime:
		v, err := single(card, resp)
		if err != nil {
			return err
		}
		p := *t.profile
		p.TimeAvailability = domain.TimeAvailability(v)
		return t.saveProfile(ctx, &p)
	case stepRevenue:
		v, err := single(card, resp)
		if err != nil {
			return err
		}
		p := *t.profile
		p.RevenueGoal = domain.RevenueGoal(v)
		return t.saveProfile(ctx, &p)
	case stepBlockers:
		vs, err := multi(card, resp, domain.MaxBlockers)
		if err != nil {
			return err
		}
		p := *t.profile
		p.Blockers = make([]domain.Blocker, len(vs))
		for i, v := range vs {
			p.Blockers[i] = domain.Blocker(v)
		}
		return t.saveProfile(ctx, &p)
	case stepContext:
		text := strings.TrimSpace(resp.Text)
		var c validation.Collector
		c.Add(validation.ValidateMaxLength("context", text, validation.MaxContextLength))
		c.Add(validation.ValidateNoNullBytes("context", text))
		if err := c.Err(); err != nil {
			return userErr("That's a bit long. Please keep it under 2000 characters.", err)
		}
		p := *t.profile
		p.Context = text
		return t.saveProfile(ctx, &p)
	case stepDelivery:
		v, err := single(card, resp)
		if err != nil {
			return err
		}
		t.sys.DeliveryModel = domain.DeliveryModel(v)
		return t.setAnswer(ctx, domain.AnswerDeliveryModel, v)
	case stepPricing:
		v, err := single(card, resp)
		if err != nil {
			return err
		}
		t.sys.PricingDirection = domain.PricingDirection(v)
		return t.setAnswer(ctx, domain.AnswerPricingDirection, v)
	case stepGuarantee:
		v, err := single(card, resp)
		if err != nil {
			return err
		}
		t.sys.SkipGuarantee = v == guaranteeSkip
		return t.setAnswer(ctx, domain.AnswerSkipGuarantee, boolAnswer(t.sys.SkipGuarantee))
	case stepNiche:
		return t.chooseNiche(ctx, card, resp)
	case stepLocation:
		city := strings.TrimSpace(resp.Text)
		var c validation.Collector
		c.Add(validation.ValidateRequired("location_city", city))
		c.Add(validation.ValidateMaxLength("location_city", city, validation.MaxCityLength))
		c.Add(validation.ValidateNoNullBytes("location_city", city))
		if err := c.Err(); err != nil {
			return userErr(fmt.Sprintf("Please enter a city name (up to %d characters).", validation.MaxCityLength), err)
		}
		t.sys.LocationCity = city
		return t.setAnswer(ctx, domain.AnswerLocationCity, city)
	case stepRetry:
		_, err := single(card, resp)
		return err
	case stepReview:
		return t.applyReview(ctx, card, resp)
	default:
		return userErr("That card doesn't take an answer.", conversation.ErrNotInput)
	}
}

// chooseNiche commits the recommendation and starts pre-generation.
func (t *Turn) chooseNiche(ctx context.Context, card *domain.Card, resp domain.CardResponse) error {
	if len(resp.Values) != 1 {
		return userErr("Please pick one niche.", validation.ErrInvalid)
	}
	rec, ok := card.ScoreCards.Find(resp.Values[0])
	if !ok {
		return userErr("Please pick one of the niches shown.", validation.ErrInvalid)
	}
	chosen := rec.ChosenRecommendation
	written, err := t.s.repo.SetChosenRecommendation(ctx, t.req.SystemID, t.req.UserID, &chosen)
	if err != nil {
		return fmt.Errorf("save chosen recommendation: %w", err)
	}
	if written {
		t.sys.ChosenRecommendation = &chosen
	} else if err := t.reload(ctx); err != nil {
		return err
	}
	if t.s.pregen != nil {
		t.s.pregen.Schedule(ctx, t.req.SystemID, t.req.UserID)
	}
	return nil
}

// applyReview stores the user's edits to the offer and marks it ready.
func (t *Turn) applyReview(ctx context.Context, card *domain.Card, resp domain.CardResponse) error {
	if t.sys.Offer == nil {
		return userErr("There's no offer to review yet.", validation.ErrInvalid)
	}
	offer := *t.sys.Offer
	offer.GuaranteeSkipped = t.sys.SkipGuarantee
	var c validation.Collector
	editable := make(map[string]bool, len(card.EditableContent.Fields))
	for _, f := range card.EditableContent.Fields {
		editable[f.Name] = true
	}
	for name, raw := range resp.Fields {
		if !editable[name] {
			c.Addf(name, "is not editable")
			continue
		}
		value := strings.TrimSpace(raw)
		switch name {
		case fieldFrom:
			offer.TransformationFrom = value
		case fieldTo:
			offer.TransformationTo = value
		case fieldDescription:
			offer.SystemDescription = value
		case fieldGuarantee:
			offer.Guarantee = value
		case fieldSetup, fieldMonthly:
			price, err := strconv.ParseFloat(strings.TrimPrefix(value, "$"), 64)
			if err != nil {
				c.Addf(name, "must be a number")
				continue
			}
			if name == fieldSetup {
				offer.PricingSetup = price
			} else {
				offer.PricingMonthly = price
			}
		}
	}
	checkOffer(&c, &offer)
	if err := c.Err(); err != nil {
		return userErr("Please fix: "+c.Summary(), err)
	}

	if err := t.s.repo.UpdateOffer(ctx, t.req.SystemID, t.req.UserID, &offer); err != nil {
		return fmt.Errorf("save reviewed offer: %w", err)
	}
	if err := t.s.repo.UpdateStatus(ctx, t.req.SystemID, t.req.UserID, domain.StatusOfferReady); err != nil {
		return fmt.Errorf("mark offer ready: %w", err)
	}
	t.sys.Offer = &offer
	t.sys.Status = domain.StatusOfferReady
	return nil
}

func (t *Turn) saveProfile(ctx context.Context, p *domain.Profile) error {
	p.UserID = t.req.UserID
	if err := t.s.repo.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	t.profile = p
	return nil
}

func (t *Turn) setAnswer(ctx context.Context, field domain.AnswerField, value string) error {
	if err := t.s.repo.SetAnswer(ctx, t.req.SystemID, t.req.UserID, field, value); err != nil {
		return fmt.Errorf("save %s: %w", field, err)
	}
	return nil
}

// single returns the one option chosen on a single-select card.
func single(card *domain.Card, resp domain.CardResponse) (string, error) {
	if len(resp.Values) != 1 {
		return "", userErr("Please pick one option.", validation.ErrInvalid)
	}
	if _, ok := card.OptionSelector.Label(resp.Values[0]); !ok {
		return "", userErr("Please pick one of the options shown.", validation.ErrInvalid)
	}
	return resp.Values[0], nil
}

// multi returns between one and maxSelect distinct options.
func multi(card *domain.Card, resp domain.CardResponse, maxSelect int) ([]string, error) {
	if len(resp.Values) == 0 || len(resp.Values) > maxSelect {
		return nil, userErr(fmt.Sprintf("Please pick between 1 and %d options.", maxSelect), validation.ErrInvalid)
	}
	seen := make(map[string]bool, len(resp.Values))
	for _, v := range resp.Values {
		if _, ok := card.OptionSelector.Label(v); !ok || seen[v] {
			return nil, userErr("Please pick from the options shown, once each.", validation.ErrInvalid)
		}
		seen[v] = true
	}
	return resp.Values, nil
}
