package support

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/server"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

// RegisterSteps binds every step of the verification features.
func (c *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the verification service is running$`, c.theVerificationServiceIsRunning)
	sc.Step(`^the KYC policy requires "([^"]*)" and "([^"]*)"$`, c.theKYCPolicyRequires)

	sc.Step(`^the OCR engine reads a clean Aadhaar card$`, c.theEngineReadsACleanAadhaarCard)
	sc.Step(`^the OCR engine reads a blurry Aadhaar card$`, c.theEngineReadsABlurryAadhaarCard)
	sc.Step(`^the OCR engine reads nothing$`, c.theEngineReadsNothing)
	sc.Step(`^the OCR engine should not have been called$`, c.theEngineShouldNotHaveBeenCalled)

	sc.Step(`^customer "([^"]*)" uploads an? "([^"]*)" document "([^"]*)"$`, c.customerUploadsDocument)
	sc.Step(`^customer "([^"]*)" uploads an? "([^"]*)" document "([^"]*)" containing "([^"]*)"$`, c.customerUploadsRawDocument)
	sc.Step(`^document "([^"]*)" is verified$`, c.documentIsVerified)
	sc.Step(`^document "([^"]*)" is resubmitted$`, c.documentIsResubmitted)
	sc.Step(`^the verifications of document "([^"]*)" are requested$`, c.theVerificationsAreRequested)

	sc.Step(`^the response status should be (\d+)$`, c.theResponseStatusShouldBe)
	sc.Step(`^the verification status should be "([^"]*)"$`, c.theVerificationStatusShouldBe)
	sc.Step(`^the verification should be in fallback mode$`, c.theVerificationShouldBeInFallbackMode)
	sc.Step(`^the field "([^"]*)" should be "([^"]*)"$`, c.theFieldShouldBe)
	sc.Step(`^the rejection reason should be "([^"]*)"$`, c.theRejectionReasonShouldBe)
	sc.Step(`^customer "([^"]*)" should have KYC state "([^"]*)" with completion ([0-9.]+)$`, c.customerShouldHaveKYCState)
	sc.Step(`^document "([^"]*)" should have (\d+) verification records$`, c.documentShouldHaveRecords)
}

func (c *TestContext) theVerificationServiceIsRunning() error {
	return c.cfg.Validate()
}

func (c *TestContext) theKYCPolicyRequires(a, b string) error {
	if c.api != nil {
		return errors.New("the KYC policy must be set before the first request")
	}
	c.cfg.KYC.RequiredDocuments = []string{a, b}
	return c.cfg.Validate()
}

func (c *TestContext) theEngineReadsACleanAadhaarCard() error {
	c.engine.Default = testutil.AadhaarTokens()
	return nil
}

func (c *TestContext) theEngineReadsABlurryAadhaarCard() error {
	c.engine.Default = testutil.Without(testutil.AadhaarTokens(), "2345", "6789", "0124")
	blurry := []recognizer.EngineToken{testutil.Token("2345 6789 0124", 300, 480, 280, 36, 0.6)}
	c.engine.On("upscale2x+sharpen+otsu", testutil.Scaled(blurry, 2))
	return nil
}

func (c *TestContext) theEngineReadsNothing() error {
	c.engine.Default = nil
	return nil
}

func (c *TestContext) theEngineShouldNotHaveBeenCalled() error {
	if n := c.engine.CallCount(); n != 0 {
		return fmt.Errorf("expected no OCR calls, got %d", n)
	}
	return nil
}

func (c *TestContext) customerUploadsDocument(customer, docType, name string) error {
	tokens := testutil.AadhaarTokens()
	if docType == string(domain.DocumentUtilityBill) {
		tokens = testutil.UtilityBillTokens()
	}
	return c.upload(customer, docType, name, testutil.DocumentPNG(c.t, tokens))
}

func (c *TestContext) customerUploadsRawDocument(customer, docType, name, content string) error {
	return c.upload(customer, docType, name, []byte(content))
}

func (c *TestContext) upload(customer, docType, name string, data []byte) error {
	err := c.postMultipart("/v1/customers/"+customer+"/documents",
		map[string]string{"document_type": docType}, name, data)
	if err != nil {
		return err
	}
	if c.LastStatus != http.StatusCreated {
		return fmt.Errorf("upload failed with %d: %s", c.LastStatus, c.LastBody)
	}
	var resp server.UploadResponse
	if err := c.decode(&resp); err != nil {
		return err
	}
	c.documents[name] = resp.Document
	return nil
}

func (c *TestContext) documentIsVerified(name string) error {
	doc, err := c.document(name)
	if err != nil {
		return err
	}
	if err := c.post("/v1/documents/" + doc.ID + "/verify"); err != nil {
		return err
	}
	return c.recordVerify()
}

func (c *TestContext) documentIsResubmitted(name string) error {
	doc, err := c.document(name)
	if err != nil {
		return err
	}
	data := testutil.DocumentPNG(c.t, testutil.AadhaarTokens())
	if err := c.postMultipart("/v1/documents/"+doc.ID+"/resubmit", nil, name, data); err != nil {
		return err
	}
	return c.recordVerify()
}

func (c *TestContext) recordVerify() error {
	c.LastVerify = nil
	if c.LastStatus != http.StatusOK {
		return nil
	}
	var resp server.VerifyResponse
	if err := c.decode(&resp); err != nil {
		return err
	}
	c.LastVerify = &resp
	return nil
}

func (c *TestContext) theVerificationsAreRequested(id string) error {
	return c.get("/v1/documents/" + id + "/verifications")
}

func (c *TestContext) theResponseStatusShouldBe(code int) error {
	if c.LastStatus != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, c.LastStatus, c.LastBody)
	}
	return nil
}

func (c *TestContext) verify() (*server.VerifyResponse, error) {
	if c.LastVerify == nil {
		return nil, fmt.Errorf("no verification result (status %d): %s", c.LastStatus, c.LastBody)
	}
	return c.LastVerify, nil
}

func (c *TestContext) theVerificationStatusShouldBe(status string) error {
	v, err := c.verify()
	if err != nil {
		return err
	}
	if got := string(v.Verification.Status); got != status {
		return fmt.Errorf("expected verification status %s, got %s (reasons: %v)", status, got, v.Verification.Reasons)
	}
	return nil
}

func (c *TestContext) theVerificationShouldBeInFallbackMode() error {
	v, err := c.verify()
	if err != nil {
		return err
	}
	if !v.Verification.FallbackMode || !v.Extraction.FallbackMode {
		return errors.New("expected the verification to be in fallback mode")
	}
	return nil
}

func (c *TestContext) theFieldShouldBe(field, value string) error {
	v, err := c.verify()
	if err != nil {
		return err
	}
	r, ok := v.Extraction.Result(domain.FieldName(field))
	if !ok || r.Candidate == nil {
		return fmt.Errorf("field %s was not extracted", field)
	}
	if r.Candidate.NormalizedValue != value {
		return fmt.Errorf("expected %s to be %q, got %q", field, value, r.Candidate.NormalizedValue)
	}
	return nil
}

func (c *TestContext) theRejectionReasonShouldBe(code string) error {
	v, err := c.verify()
	if err != nil {
		return err
	}
	for _, r := range v.Verification.Reasons {
		if string(r.Code) == code {
			return nil
		}
	}
	return fmt.Errorf("reason %s not found in %v", code, v.Verification.Reasons)
}

func (c *TestContext) customerShouldHaveKYCState(customer, state string, completion float64) error {
	if err := c.get("/v1/customers/" + customer + "/kyc"); err != nil {
		return err
	}
	if c.LastStatus != http.StatusOK {
		return fmt.Errorf("kyc lookup failed with %d: %s", c.LastStatus, c.LastBody)
	}
	var st domain.KycStatus
	if err := c.decode(&st); err != nil {
		return err
	}
	if string(st.State) != state {
		return fmt.Errorf("expected KYC state %s, got %s", state, st.State)
	}
	if math.Abs(st.Completion-completion) > 1e-9 {
		return fmt.Errorf("expected completion %.2f, got %.2f", completion, st.Completion)
	}
	return nil
}

func (c *TestContext) documentShouldHaveRecords(name string, n int) error {
	doc, err := c.document(name)
	if err != nil {
		return err
	}
	if err := c.get("/v1/documents/" + doc.ID + "/verifications"); err != nil {
		return err
	}
	var resp server.VerificationsResponse
	if err := c.decode(&resp); err != nil {
		return err
	}
	if resp.Count != n {
		return fmt.Errorf("expected %d verification records, got %d", n, resp.Count)
	}
	return nil
}
